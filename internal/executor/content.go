package executor

import (
	"fmt"
	"time"

	"github.com/contextbridge/backend/internal/instruction"
)

func (e *Executor) execContentInstruction(instrID string, p *instruction.ContentInstruction) instruction.Result {
	if !e.cfg.EnableDOMManipulation {
		return instruction.Fail(errDOMDisabled)
	}

	switch p.Action {
	case instruction.ContentActionShowTooltip:
		el, ok := e.find(p.Selector)
		if !ok {
			return notFound(p.Selector)
		}
		e.showTooltip(el, p.Content, time.Duration(p.Duration)*time.Millisecond)
		return instruction.Succeed("Tooltip shown")

	case instruction.ContentActionHighlightSection:
		el, ok := e.find(p.Selector)
		if !ok {
			return notFound(p.Selector)
		}
		el.AddClass("cb-section-highlight")
		if p.Duration > 0 {
			e.sched.After(time.Duration(p.Duration)*time.Millisecond, func() {
				el.RemoveClass("cb-section-highlight")
			})
		}
		return instruction.Succeed("Section highlighted")

	case instruction.ContentActionAddOverlay:
		// Overlays need no selector; a present-but-stale one is tolerated
		// and the overlay covers the full page regardless.
		e.showOverlay(instrID, p.Content, time.Duration(p.Duration)*time.Millisecond)
		return instruction.Succeed("Overlay added")

	case instruction.ContentActionReplaceContent:
		el, ok := e.find(p.Selector)
		if !ok {
			return notFound(p.Selector)
		}
		el.SetHTML(p.Content)
		return instruction.Succeed("Content replaced")
	}

	return instruction.Fail(fmt.Sprintf("Unknown content action: %s", p.Action))
}

func (e *Executor) execNotification(instrID string, p *instruction.ContextualNotification) instruction.Result {
	if !e.cfg.EnableNotifications {
		return instruction.Fail(errNotificationsDisabled)
	}
	e.showNotification(instrID, p)
	return instruction.Succeed("Notification shown")
}

func (e *Executor) execNavigationSuggestion(instrID string, p *instruction.NavigationSuggestion) instruction.Result {
	if !e.cfg.EnableNotifications {
		return instruction.Fail(errNotificationsDisabled)
	}

	if p.ConfirmRequired && !e.confirm(p.Message) {
		return instruction.Declined("Navigation cancelled by user")
	}

	notification := &instruction.ContextualNotification{
		Message: p.Message,
	}
	if p.URL != "" {
		label := p.ActionLabel
		if label == "" {
			label = "Go"
		}
		notification.Actions = []instruction.Action{{
			Label:  label,
			Action: "navigate",
			URL:    p.URL,
		}}
	}
	e.showNotification(instrID, notification)
	return instruction.Succeed("Navigation suggestion shown")
}

func (e *Executor) execOverlay(instrID string, t instruction.Type, p *instruction.Overlay) instruction.Result {
	switch t {
	case instruction.TypeShowTooltip:
		el, ok := e.find(p.Selector)
		if !ok {
			return notFound(p.Selector)
		}
		e.showTooltip(el, p.Content, time.Duration(p.Duration)*time.Millisecond)
		return instruction.Succeed("Tooltip shown")

	case instruction.TypeShowModal:
		e.showModal(instrID, p)
		return instruction.Succeed("Modal shown")
	}

	return instruction.Fail(fmt.Sprintf("Unknown instruction type: %s", t))
}

func (e *Executor) execRedirect(p *instruction.Redirect) instruction.Result {
	if !e.cfg.EnableRedirects {
		return instruction.Fail(errRedirectsDisabled)
	}

	if p.ConfirmRequired && p.Message != "" && !e.confirm(p.Message) {
		return instruction.Declined("Redirect cancelled by user")
	}

	if p.Delay > 0 {
		url := p.URL
		e.sched.After(time.Duration(p.Delay)*time.Millisecond, func() {
			e.dom.Navigate(url)
		})
		return instruction.Succeed("Redirect scheduled")
	}

	e.dom.Navigate(p.URL)
	return instruction.Succeed("Redirected")
}
