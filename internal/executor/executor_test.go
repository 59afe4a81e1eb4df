package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextbridge/backend/internal/dom"
	"github.com/contextbridge/backend/internal/instruction"
)

const testPage = `<html><body>
<form id="f">
  <input id="email" name="email" type="email"/>
  <textarea id="bio"></textarea>
</form>
<div id="hero">Hello</div>
<button id="cta">Go</button>
</body></html>`

// fakeTask is a scheduled continuation under test control.
type fakeTask struct {
	delay     time.Duration
	fn        func()
	cancelled bool
}

func (t *fakeTask) Cancel() { t.cancelled = true }

// fakeSched collects scheduled tasks instead of running them.
type fakeSched struct {
	tasks []*fakeTask
}

func (s *fakeSched) After(d time.Duration, fn func()) CancelHandle {
	t := &fakeTask{delay: d, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// fire runs every pending task that has not been cancelled.
func (s *fakeSched) fire() {
	pending := s.tasks
	s.tasks = nil
	for _, t := range pending {
		if !t.cancelled {
			t.fn()
		}
	}
}

func allEnabled() Config {
	return Config{
		EnableNotifications:    true,
		EnableRedirects:        true,
		EnableFormManipulation: true,
		EnableDOMManipulation:  true,
	}
}

func newTestExecutor(t *testing.T, cfg Config, opts ...Option) (*Executor, *dom.Memory, *fakeSched) {
	t.Helper()
	doc, err := dom.LoadHTML(testPage)
	require.NoError(t, err)

	sched := &fakeSched{}
	opts = append([]Option{WithScheduler(sched)}, opts...)
	return New(cfg, doc, nil, opts...), doc, sched
}

func instr(typ instruction.Type, data instruction.Payload) instruction.Instruction {
	return instruction.New(typ, data)
}

func TestFormAssistanceHighlightsField(t *testing.T) {
	exec, doc, _ := newTestExecutor(t, allEnabled())

	res := exec.Execute(instr(instruction.TypeFormAssistance, &instruction.FormAssistance{
		Action:   instruction.FormActionHighlightField,
		Selector: "#email",
		Message:  "This field is required",
	}))

	assert.True(t, res.Success)
	el, ok := doc.Find("#email")
	require.True(t, ok)
	assert.True(t, el.HasClass("cb-field-highlight"))

	// A tooltip was attached next to the field.
	_, _, tooltips := exec.ArtifactCounts()
	assert.Equal(t, 1, tooltips)
	tip, ok := doc.Find("#cb-tooltip-email")
	require.True(t, ok)
	assert.Equal(t, "This field is required", tip.Text())
}

func TestFormAssistanceSuggestValue(t *testing.T) {
	exec, doc, _ := newTestExecutor(t, allEnabled())

	res := exec.Execute(instr(instruction.TypeFormAssistance, &instruction.FormAssistance{
		Action:   instruction.FormActionSuggestValue,
		Selector: "#email",
		Message:  "Try your work address",
		Value:    "me@example.com",
	}))

	assert.True(t, res.Success)
	el, _ := doc.Find("#email")
	assert.Equal(t, "me@example.com", el.Value())
}

func TestFormAssistanceDisabled(t *testing.T) {
	cfg := allEnabled()
	cfg.EnableFormManipulation = false

	var failedReason string
	exec, _, _ := newTestExecutor(t, cfg, WithHooks(Hooks{
		OnFailed: func(_ instruction.Instruction, reason string) { failedReason = reason },
	}))

	res := exec.Execute(instr(instruction.TypeFormAssistance, &instruction.FormAssistance{
		Action:   instruction.FormActionHighlightField,
		Selector: "#email",
		Message:  "m",
	}))

	assert.False(t, res.Success)
	assert.Equal(t, "Form manipulation disabled", res.Error)
	assert.Equal(t, "Form manipulation disabled", failedReason)
}

func TestElementNotFound(t *testing.T) {
	exec, _, _ := newTestExecutor(t, allEnabled())

	res := exec.Execute(instr(instruction.TypeHighlightElement, &instruction.ElementTarget{
		Selector: "#missing",
	}))

	assert.False(t, res.Success)
	assert.Equal(t, "Element not found: #missing", res.Error)
}

func TestFillFormFieldDispatchesInputThenChange(t *testing.T) {
	exec, doc, _ := newTestExecutor(t, allEnabled())

	res := exec.Execute(instr(instruction.TypeFillFormField, &instruction.FillFormField{
		Selector:      "#email",
		Value:         "a@b.c",
		Focus:         true,
		TriggerEvents: true,
	}))

	assert.True(t, res.Success)
	el, _ := doc.Find("#email")
	assert.Equal(t, "a@b.c", el.Value())
	assert.Equal(t, "email", doc.Focused())
	assert.Equal(t, []string{"input", "change"}, doc.EventsFor("email"))
}

func TestFillFormFieldRejectsNonField(t *testing.T) {
	exec, _, _ := newTestExecutor(t, allEnabled())

	res := exec.Execute(instr(instruction.TypeFillFormField, &instruction.FillFormField{
		Selector: "#hero",
		Value:    "x",
	}))

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not a form field")
}

func TestFillTextarea(t *testing.T) {
	exec, doc, _ := newTestExecutor(t, allEnabled())

	res := exec.Execute(instr(instruction.TypeFillFormField, &instruction.FillFormField{
		Selector: "#bio",
		Value:    "hello there",
	}))

	assert.True(t, res.Success)
	el, _ := doc.Find("#bio")
	assert.Equal(t, "hello there", el.Value())
}

func TestScrollAndClick(t *testing.T) {
	exec, doc, _ := newTestExecutor(t, allEnabled())

	res := exec.Execute(instr(instruction.TypeScrollToElement, &instruction.ElementTarget{
		Selector: "#hero",
		Smooth:   true,
	}))
	assert.True(t, res.Success)

	res = exec.Execute(instr(instruction.TypeClickElement, &instruction.ElementTarget{
		Selector: "#cta",
	}))
	assert.True(t, res.Success)

	scrolls := doc.Scrolls()
	require.Len(t, scrolls, 1)
	assert.Equal(t, "hero", scrolls[0].ElementID)
	assert.True(t, scrolls[0].Smooth)
	assert.Equal(t, 1, doc.Clicks("cta"))
}

func TestHighlightWithDurationClearsClass(t *testing.T) {
	exec, doc, sched := newTestExecutor(t, allEnabled())

	exec.Execute(instr(instruction.TypeHighlightElement, &instruction.ElementTarget{
		Selector: "#hero",
		Duration: 1000,
	}))

	el, _ := doc.Find("#hero")
	assert.True(t, el.HasClass("cb-highlight"))

	sched.fire()
	assert.False(t, el.HasClass("cb-highlight"))
}

func TestTooltipReplacedPerTarget(t *testing.T) {
	exec, doc, sched := newTestExecutor(t, allEnabled())

	exec.Execute(instr(instruction.TypeShowTooltip, &instruction.Overlay{
		Selector: "#email",
		Content:  "first",
	}))
	exec.Execute(instr(instruction.TypeShowTooltip, &instruction.Overlay{
		Selector: "#email",
		Content:  "second",
	}))

	_, _, tooltips := exec.ArtifactCounts()
	assert.Equal(t, 1, tooltips)

	tip, ok := doc.Find("#cb-tooltip-email")
	require.True(t, ok)
	assert.Equal(t, "second", tip.Text())

	// The displaced tooltip's timer was cancelled; only the live one fires.
	sched.fire()
	_, _, tooltips = exec.ArtifactCounts()
	assert.Equal(t, 0, tooltips)
	_, ok = doc.Find("#cb-tooltip-email")
	assert.False(t, ok)
}

func TestTooltipDefaultTimeout(t *testing.T) {
	exec, _, sched := newTestExecutor(t, allEnabled())

	exec.Execute(instr(instruction.TypeShowTooltip, &instruction.Overlay{
		Selector: "#email",
		Content:  "hi",
	}))

	require.Len(t, sched.tasks, 1)
	assert.Equal(t, DefaultTooltipTimeout, sched.tasks[0].delay)
}

func TestNotificationAutoCloseDefault(t *testing.T) {
	exec, doc, sched := newTestExecutor(t, allEnabled())

	in := instr(instruction.TypeContextualNotification, &instruction.ContextualNotification{
		Title:   "Note",
		Message: "Something",
	})
	res := exec.Execute(in)
	assert.True(t, res.Success)

	notifications, _, _ := exec.ArtifactCounts()
	assert.Equal(t, 1, notifications)
	_, ok := doc.Find("#cb-notification-" + in.ID)
	assert.True(t, ok)

	require.Len(t, sched.tasks, 1)
	assert.Equal(t, DefaultNotificationTimeout, sched.tasks[0].delay)

	sched.fire()
	notifications, _, _ = exec.ArtifactCounts()
	assert.Equal(t, 0, notifications)
	_, ok = doc.Find("#cb-notification-" + in.ID)
	assert.False(t, ok)
}

func TestNotificationExplicitNoAutoClose(t *testing.T) {
	exec, _, sched := newTestExecutor(t, allEnabled())

	off := false
	exec.Execute(instr(instruction.TypeContextualNotification, &instruction.ContextualNotification{
		Message:   "Sticky",
		AutoClose: &off,
	}))

	assert.Empty(t, sched.tasks)
	notifications, _, _ := exec.ArtifactCounts()
	assert.Equal(t, 1, notifications)
}

func TestNotificationActionsRendered(t *testing.T) {
	exec, doc, _ := newTestExecutor(t, allEnabled())

	in := instr(instruction.TypeContextualNotification, &instruction.ContextualNotification{
		Message: "Pick one",
		Actions: []instruction.Action{
			{Label: "Go Back", Action: "go_back"},
			{Label: "Refresh", Action: "refresh"},
		},
	})
	exec.Execute(in)

	btn, ok := doc.Find("#cb-notification-" + in.ID + " button[data-action='go_back']")
	require.True(t, ok)
	assert.Equal(t, "Go Back", btn.Text())
}

func TestModalAutoCloseNeedsBothFlagAndDuration(t *testing.T) {
	exec, _, sched := newTestExecutor(t, allEnabled())

	// autoClose without duration: stays open.
	exec.Execute(instr(instruction.TypeShowModal, &instruction.Overlay{
		Content:   "<p>hi</p>",
		AutoClose: true,
	}))
	assert.Empty(t, sched.tasks)

	// autoClose with duration: closes.
	exec.Execute(instr(instruction.TypeShowModal, &instruction.Overlay{
		Content:   "<p>bye</p>",
		AutoClose: true,
		Duration:  2000,
	}))
	require.Len(t, sched.tasks, 1)

	_, modals, _ := exec.ArtifactCounts()
	assert.Equal(t, 2, modals)

	sched.fire()
	_, modals, _ = exec.ArtifactCounts()
	assert.Equal(t, 1, modals)
}

func TestModalContentSanitized(t *testing.T) {
	exec, doc, _ := newTestExecutor(t, allEnabled())

	in := instr(instruction.TypeShowModal, &instruction.Overlay{
		Content: `<p>ok</p><script>alert(1)</script>`,
	})
	exec.Execute(in)

	rendered, err := doc.Render()
	require.NoError(t, err)
	assert.NotContains(t, rendered, "<script>")
	assert.Contains(t, rendered, "<p>ok</p>")
}

func TestNavigationSuggestionDeclined(t *testing.T) {
	// No confirmer: confirmRequired flows are declined.
	exec, _, _ := newTestExecutor(t, allEnabled())

	res := exec.Execute(instr(instruction.TypeNavigationSuggestion, &instruction.NavigationSuggestion{
		Message:         "Go to checkout?",
		URL:             "/checkout",
		ConfirmRequired: true,
	}))

	assert.False(t, res.Success)
	assert.Equal(t, "Navigation cancelled by user", res.Message)
	assert.Empty(t, res.Error)
}

func TestNavigationSuggestionConfirmed(t *testing.T) {
	exec, doc, _ := newTestExecutor(t, allEnabled(),
		WithConfirmer(ConfirmFunc(func(string) bool { return true })))

	in := instr(instruction.TypeNavigationSuggestion, &instruction.NavigationSuggestion{
		Message:         "Go to checkout?",
		URL:             "/checkout",
		ConfirmRequired: true,
	})
	res := exec.Execute(in)

	assert.True(t, res.Success)
	// Rendered as a notification with a navigate button, default label.
	btn, ok := doc.Find("#cb-notification-" + in.ID + " button[data-action='navigate']")
	require.True(t, ok)
	assert.Equal(t, "Go", btn.Text())
	url, _ := btn.Attr("data-url")
	assert.Equal(t, "/checkout", url)
}

func TestRedirectImmediate(t *testing.T) {
	exec, doc, _ := newTestExecutor(t, allEnabled())

	res := exec.Execute(instr(instruction.TypeRedirect, &instruction.Redirect{
		URL: "https://example.com/next",
	}))

	assert.True(t, res.Success)
	assert.Equal(t, "Redirected", res.Message)
	assert.Equal(t, "https://example.com/next", doc.Location())
}

func TestRedirectDelayed(t *testing.T) {
	exec, doc, sched := newTestExecutor(t, allEnabled())

	res := exec.Execute(instr(instruction.TypeRedirect, &instruction.Redirect{
		URL:   "https://example.com/later",
		Delay: 1500,
	}))

	assert.True(t, res.Success)
	assert.Equal(t, "Redirect scheduled", res.Message)
	assert.Empty(t, doc.Location())

	sched.fire()
	assert.Equal(t, "https://example.com/later", doc.Location())
}

func TestRedirectDeclined(t *testing.T) {
	exec, doc, _ := newTestExecutor(t, allEnabled(),
		WithConfirmer(ConfirmFunc(func(string) bool { return false })))

	res := exec.Execute(instr(instruction.TypeRedirect, &instruction.Redirect{
		URL:             "https://example.com/away",
		ConfirmRequired: true,
		Message:         "Leave this page?",
	}))

	assert.False(t, res.Success)
	assert.Equal(t, "Redirect cancelled by user", res.Message)
	assert.Empty(t, res.Error)
	assert.Empty(t, doc.Location())
}

func TestRedirectConfirmSkippedWithoutMessage(t *testing.T) {
	// confirmRequired without a message proceeds: there is nothing to ask.
	exec, doc, _ := newTestExecutor(t, allEnabled())

	res := exec.Execute(instr(instruction.TypeRedirect, &instruction.Redirect{
		URL:             "https://example.com/silent",
		ConfirmRequired: true,
	}))

	assert.True(t, res.Success)
	assert.Equal(t, "https://example.com/silent", doc.Location())
}

func TestRedirectsDisabled(t *testing.T) {
	cfg := allEnabled()
	cfg.EnableRedirects = false
	exec, doc, _ := newTestExecutor(t, cfg)

	res := exec.Execute(instr(instruction.TypeRedirect, &instruction.Redirect{
		URL: "https://example.com",
	}))

	assert.False(t, res.Success)
	assert.Equal(t, "Redirects disabled", res.Error)
	assert.Empty(t, doc.Location())
}

func TestContentInstructionDisabled(t *testing.T) {
	cfg := allEnabled()
	cfg.EnableDOMManipulation = false
	exec, _, _ := newTestExecutor(t, cfg)

	res := exec.Execute(instr(instruction.TypeContentInstruction, &instruction.ContentInstruction{
		Action:   instruction.ContentActionReplaceContent,
		Selector: "#hero",
		Content:  "<p>new</p>",
	}))

	assert.False(t, res.Success)
	assert.Equal(t, "DOM manipulation disabled", res.Error)
}

func TestReplaceContent(t *testing.T) {
	exec, doc, _ := newTestExecutor(t, allEnabled())

	res := exec.Execute(instr(instruction.TypeContentInstruction, &instruction.ContentInstruction{
		Action:   instruction.ContentActionReplaceContent,
		Selector: "#hero",
		Content:  "<em>updated</em>",
	}))

	assert.True(t, res.Success)
	el, _ := doc.Find("#hero")
	assert.Equal(t, "updated", el.Text())
}

func TestUnknownInstructionTypeLeavesRegistryUntouched(t *testing.T) {
	exec, _, _ := newTestExecutor(t, allEnabled())

	res := exec.Execute(instruction.Instruction{
		ID:   "i1",
		Type: instruction.Type("teleport"),
		Data: &instruction.Custom{CustomType: "x"},
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Unknown instruction type")

	n, m, tip := exec.ArtifactCounts()
	assert.Zero(t, n+m+tip)
}

func TestCustomInstructionEmitsHook(t *testing.T) {
	var got instruction.Instruction
	exec, _, _ := newTestExecutor(t, allEnabled(), WithHooks(Hooks{
		OnCustom: func(in instruction.Instruction) { got = in },
	}))

	in := instr(instruction.TypeCustom, &instruction.Custom{
		CustomType: "confetti",
		Data:       map[string]any{"count": 3},
	})
	res := exec.Execute(in)

	assert.True(t, res.Success)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, "confetti", res.Data["customType"])
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	// A nil document makes any DOM access panic; the executor must convert
	// that into a failure result.
	exec := New(allEnabled(), nil, nil, WithScheduler(&fakeSched{}))

	var res instruction.Result
	assert.NotPanics(t, func() {
		res = exec.Execute(instr(instruction.TypeClickElement, &instruction.ElementTarget{
			Selector: "#cta",
		}))
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Internal execution error")
}

func TestHooksMutuallyExclusive(t *testing.T) {
	executed, failed := 0, 0
	exec, _, _ := newTestExecutor(t, allEnabled(), WithHooks(Hooks{
		OnExecuted: func(instruction.Instruction, instruction.Result) { executed++ },
		OnFailed:   func(instruction.Instruction, string) { failed++ },
	}))

	exec.Execute(instr(instruction.TypeClickElement, &instruction.ElementTarget{Selector: "#cta"}))
	assert.Equal(t, 1, executed)
	assert.Equal(t, 0, failed)

	exec.Execute(instr(instruction.TypeClickElement, &instruction.ElementTarget{Selector: "#gone"}))
	assert.Equal(t, 1, executed)
	assert.Equal(t, 1, failed)
}

func TestCleanupRemovesEverythingAndIsIdempotent(t *testing.T) {
	exec, doc, sched := newTestExecutor(t, allEnabled())

	notif := instr(instruction.TypeContextualNotification, &instruction.ContextualNotification{Message: "n"})
	modal := instr(instruction.TypeShowModal, &instruction.Overlay{Content: "<p>m</p>"})
	exec.Execute(notif)
	exec.Execute(modal)
	exec.Execute(instr(instruction.TypeShowTooltip, &instruction.Overlay{Selector: "#email", Content: "t"}))

	n, m, tip := exec.ArtifactCounts()
	assert.Equal(t, 3, n+m+tip)

	exec.Cleanup()
	n, m, tip = exec.ArtifactCounts()
	assert.Zero(t, n+m+tip)
	_, ok := doc.Find("#cb-notification-" + notif.ID)
	assert.False(t, ok)
	_, ok = doc.Find("#cb-modal-" + modal.ID)
	assert.False(t, ok)

	// Cancelled timers must not resurrect removals.
	sched.fire()

	assert.NotPanics(t, func() { exec.Cleanup() })
}

func TestRemoveNotificationIdempotent(t *testing.T) {
	exec, _, _ := newTestExecutor(t, allEnabled())

	in := instr(instruction.TypeContextualNotification, &instruction.ContextualNotification{Message: "n"})
	exec.Execute(in)

	exec.RemoveNotification(in.ID)
	assert.NotPanics(t, func() { exec.RemoveNotification(in.ID) })

	n, _, _ := exec.ArtifactCounts()
	assert.Zero(t, n)
}

func TestValidationFailureSurfacesAsResult(t *testing.T) {
	exec, _, _ := newTestExecutor(t, allEnabled())

	res := exec.Execute(instruction.Instruction{
		ID:   "i1",
		Type: instruction.TypeRedirect,
		Data: &instruction.Redirect{},
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "url")
}
