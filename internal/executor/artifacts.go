package executor

import (
	"time"

	"github.com/contextbridge/backend/internal/dom"
	"github.com/contextbridge/backend/internal/instruction"
)

// Artifact element classes. The host page styles these.
const (
	classNotification = "cb-notification"
	classModal        = "cb-modal"
	classOverlay      = "cb-overlay"
	classTooltip      = "cb-tooltip"
)

// showTooltip attaches a tooltip next to target, replacing any existing
// tooltip for the same target. Zero duration means the default timeout.
func (e *Executor) showTooltip(target dom.Element, content string, duration time.Duration) {
	targetID := target.ID()

	el := e.dom.CreateElementAfter(target, "span", "cb-tooltip-"+targetID, classTooltip)
	el.SetText(content)

	if duration <= 0 {
		duration = DefaultTooltipTimeout
	}
	timer := e.sched.After(duration, func() {
		e.RemoveTooltip(targetID)
	})

	e.track(e.reg.tooltips, targetID, artifact{el: el, timer: timer})
}

// RemoveTooltip removes the tooltip attached to the given target element,
// cancelling its timer. Absent targets are a no-op; this is also the
// outside-click dismissal path.
func (e *Executor) RemoveTooltip(targetID string) {
	e.untrack(e.reg.tooltips, targetID)
}

// showNotification renders a notification artifact keyed by instruction id.
func (e *Executor) showNotification(instrID string, p *instruction.ContextualNotification) {
	el := e.dom.CreateElement("div", "cb-notification-"+instrID, classNotification)
	if p.Title != "" {
		title := e.dom.CreateElementIn(el, "strong", "")
		title.SetText(p.Title)
	}
	msg := e.dom.CreateElementIn(el, "span", "")
	msg.SetText(p.Message)
	for _, action := range p.Actions {
		e.appendActionButton(el, action)
	}

	autoClose := p.AutoClose == nil || *p.AutoClose
	var timer CancelHandle
	if autoClose {
		duration := time.Duration(p.Duration) * time.Millisecond
		if duration <= 0 {
			duration = DefaultNotificationTimeout
		}
		timer = e.sched.After(duration, func() {
			e.RemoveNotification(instrID)
		})
	}

	e.track(e.reg.notifications, instrID, artifact{el: el, timer: timer})
}

// RemoveNotification dismisses a notification by instruction id. This is
// the user-dismiss path as well as the auto-close path; removal is
// idempotent.
func (e *Executor) RemoveNotification(instrID string) {
	e.untrack(e.reg.notifications, instrID)
}

// showModal renders a page-centered modal keyed by instruction id. Modals
// auto-close only when both autoClose and a duration are supplied.
func (e *Executor) showModal(instrID string, p *instruction.Overlay) {
	el := e.dom.CreateElement("div", "cb-modal-"+instrID, classModal)
	if p.Title != "" {
		title := e.dom.CreateElementIn(el, "h2", "")
		title.SetText(p.Title)
	}
	body := e.dom.CreateElementIn(el, "div", "", "cb-modal-body")
	body.SetHTML(p.Content)
	for _, action := range p.Actions {
		e.appendActionButton(el, action)
	}
	if p.Closable {
		closeBtn := e.dom.CreateElementIn(el, "button", "", "cb-modal-close")
		closeBtn.SetText("×")
	}

	var timer CancelHandle
	if p.AutoClose && p.Duration > 0 {
		timer = e.sched.After(time.Duration(p.Duration)*time.Millisecond, func() {
			e.RemoveModal(instrID)
		})
	}

	e.track(e.reg.modals, instrID, artifact{el: el, timer: timer})
}

// showOverlay renders a full-page overlay. Overlays share the modal
// registry: they close through the same paths.
func (e *Executor) showOverlay(instrID, content string, duration time.Duration) {
	el := e.dom.CreateElement("div", "cb-overlay-"+instrID, classOverlay)
	el.SetHTML(content)

	var timer CancelHandle
	if duration > 0 {
		timer = e.sched.After(duration, func() {
			e.RemoveModal(instrID)
		})
	}

	e.track(e.reg.modals, instrID, artifact{el: el, timer: timer})
}

// RemoveModal closes a modal by instruction id; idempotent.
func (e *Executor) RemoveModal(instrID string) {
	e.untrack(e.reg.modals, instrID)
}

// track registers an artifact, tearing down any displaced entry under the
// same key so re-delivery per id stays idempotent.
func (e *Executor) track(m map[string]artifact, key string, a artifact) {
	if old, existed := e.reg.put(m, key, a); existed {
		if old.timer != nil {
			old.timer.Cancel()
		}
		e.dom.Remove(old.el)
	}
}

// untrack removes and tears down an artifact; absent keys are a no-op.
func (e *Executor) untrack(m map[string]artifact, key string) {
	if a, ok := e.reg.take(m, key); ok {
		if a.timer != nil {
			a.timer.Cancel()
		}
		e.dom.Remove(a.el)
	}
}

func (e *Executor) appendActionButton(parent dom.Element, action instruction.Action) {
	btn := e.dom.CreateElementIn(parent, "button", "", "cb-action")
	btn.SetText(action.Label)
	btn.SetAttr("data-action", action.Action)
	if action.URL != "" {
		btn.SetAttr("data-url", action.URL)
	}
}
