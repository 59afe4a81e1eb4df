// Package executor applies backend-authored instructions to the live page
// through the dom capability interface. Execution is cooperative: one
// instruction at a time, in arrival order, with timers scheduled as
// independent continuations that never block the next instruction.
package executor

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/contextbridge/backend/internal/dom"
	"github.com/contextbridge/backend/internal/instruction"
	"github.com/contextbridge/backend/internal/logging"
)

// Default auto-close timeouts.
const (
	DefaultTooltipTimeout      = 3000 * time.Millisecond
	DefaultNotificationTimeout = 5000 * time.Millisecond
)

// Failure strings surfaced in results. Instruction-authored text is the
// only thing shown to end users; these go to the OnFailed hook.
const (
	errFormDisabled          = "Form manipulation disabled"
	errDOMDisabled           = "DOM manipulation disabled"
	errNotificationsDisabled = "Notifications disabled"
	errRedirectsDisabled     = "Redirects disabled"
)

// Confirmer obtains a synchronous user decision for confirmRequired flows.
type Confirmer interface {
	Confirm(message string) bool
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(message string) bool

func (f ConfirmFunc) Confirm(message string) bool { return f(message) }

// Config holds the executor feature flags.
type Config struct {
	EnableNotifications    bool
	EnableRedirects        bool
	EnableFormManipulation bool
	EnableDOMManipulation  bool
}

// Hooks are the application callbacks. OnExecuted and OnFailed are mutually
// exclusive per instruction. OnCustom receives custom instructions verbatim;
// the executor never interprets them.
type Hooks struct {
	OnExecuted func(instruction.Instruction, instruction.Result)
	OnFailed   func(instruction.Instruction, string)
	OnCustom   func(instruction.Instruction)
}

// Executor is the instruction state machine.
type Executor struct {
	cfg       Config
	dom       dom.Document
	sched     Scheduler
	confirmer Confirmer
	hooks     Hooks
	log       *logging.Logger
	reg       *artifactRegistry
}

// Option customizes an Executor.
type Option func(*Executor)

// WithScheduler replaces the wall-clock scheduler, used in tests.
func WithScheduler(s Scheduler) Option {
	return func(e *Executor) { e.sched = s }
}

// WithConfirmer sets the user-confirmation source. Without one, every
// confirmRequired flow is treated as declined.
func WithConfirmer(c Confirmer) Option {
	return func(e *Executor) { e.confirmer = c }
}

// WithHooks sets the application callbacks.
func WithHooks(h Hooks) Option {
	return func(e *Executor) { e.hooks = h }
}

// New creates an executor over a document.
func New(cfg Config, doc dom.Document, log *logging.Logger, opts ...Option) *Executor {
	if log == nil {
		log = logging.NewNop()
	}
	e := &Executor{
		cfg:   cfg,
		dom:   doc,
		sched: NewScheduler(),
		log:   log.WithComponent("executor"),
		reg:   newArtifactRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies one instruction and returns its result. It never panics
// and never throws past this boundary: unexpected failures during dispatch
// become failure results. Exactly one of the executed/failed hooks fires.
func (e *Executor) Execute(in instruction.Instruction) instruction.Result {
	res := e.dispatch(in)

	if res.Success {
		e.log.Debug("instruction executed",
			zap.String("id", in.ID), zap.String("type", string(in.Type)))
		if e.hooks.OnExecuted != nil {
			e.hooks.OnExecuted(in, res)
		}
	} else {
		reason := res.Error
		if reason == "" {
			reason = res.Message
		}
		e.log.Debug("instruction failed",
			zap.String("id", in.ID), zap.String("type", string(in.Type)),
			zap.String("reason", reason))
		if e.hooks.OnFailed != nil {
			e.hooks.OnFailed(in, reason)
		}
	}
	return res
}

// dispatch routes on the payload's concrete type. The recover converts any
// unexpected panic during DOM work into a failure result.
func (e *Executor) dispatch(in instruction.Instruction) (res instruction.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic during instruction dispatch",
				zap.String("id", in.ID), zap.String("type", string(in.Type)),
				zap.Any("panic", r))
			res = instruction.Fail(fmt.Sprintf("Internal execution error: %v", r))
		}
	}()

	if !in.Type.Known() {
		return instruction.Fail(fmt.Sprintf("Unknown instruction type: %s", in.Type))
	}
	if err := in.Validate(); err != nil {
		return instruction.Fail(err.Error())
	}

	switch p := in.Data.(type) {
	case *instruction.FormAssistance:
		return e.execFormAssistance(p)
	case *instruction.NavigationSuggestion:
		return e.execNavigationSuggestion(in.ID, p)
	case *instruction.ContentInstruction:
		return e.execContentInstruction(in.ID, p)
	case *instruction.ContextualNotification:
		return e.execNotification(in.ID, p)
	case *instruction.ElementTarget:
		return e.execElementTarget(in.Type, p)
	case *instruction.FillFormField:
		return e.execFillFormField(p)
	case *instruction.Overlay:
		return e.execOverlay(in.ID, in.Type, p)
	case *instruction.Redirect:
		return e.execRedirect(p)
	case *instruction.Custom:
		if e.hooks.OnCustom != nil {
			e.hooks.OnCustom(in)
		}
		return instruction.SucceedWith("Custom instruction emitted", map[string]any{
			"customType": p.CustomType,
		})
	}
	return instruction.Fail(fmt.Sprintf("Unknown instruction type: %s", in.Type))
}

// confirm asks the user; with no confirmer configured the answer is no.
func (e *Executor) confirm(message string) bool {
	if e.confirmer == nil {
		return false
	}
	return e.confirmer.Confirm(message)
}

func (e *Executor) find(selector string) (dom.Element, bool) {
	return e.dom.Find(selector)
}

func notFound(selector string) instruction.Result {
	return instruction.Fail("Element not found: " + selector)
}

// Cleanup removes every tracked notification, modal and tooltip and cancels
// their pending timers. Idempotent: a second call is a no-op.
func (e *Executor) Cleanup() {
	for _, a := range e.reg.drain() {
		if a.timer != nil {
			a.timer.Cancel()
		}
		e.dom.Remove(a.el)
	}
}

// ArtifactCounts reports live artifact totals (notifications, modals,
// tooltips).
func (e *Executor) ArtifactCounts() (int, int, int) {
	return e.reg.counts()
}
