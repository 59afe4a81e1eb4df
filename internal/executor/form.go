package executor

import (
	"fmt"
	"time"

	"github.com/contextbridge/backend/internal/instruction"
)

// Marker classes applied to assisted form fields.
const (
	classFieldHighlight  = "cb-field-highlight"
	classFieldValidation = "cb-field-validation"
	classFieldError      = "cb-field-error"
)

func (e *Executor) execFormAssistance(p *instruction.FormAssistance) instruction.Result {
	if !e.cfg.EnableFormManipulation {
		return instruction.Fail(errFormDisabled)
	}

	el, ok := e.find(p.Selector)
	if !ok {
		return notFound(p.Selector)
	}

	switch p.Action {
	case instruction.FormActionHighlightField:
		el.AddClass(classFieldHighlight)
		e.showTooltip(el, p.Message, 0)

	case instruction.FormActionValidateField:
		el.AddClass(classFieldValidation)
		e.showTooltip(el, p.Message, 0)

	case instruction.FormActionSuggestValue:
		if p.Value != "" {
			el.SetValue(p.Value)
		}
		e.showTooltip(el, p.Message, 0)

	case instruction.FormActionShowError:
		el.AddClass(classFieldError)
		e.showTooltip(el, p.Message, 0)

	default:
		return instruction.Fail(fmt.Sprintf("Unknown form assistance action: %s", p.Action))
	}

	return instruction.Succeed("Form assistance applied")
}

func (e *Executor) execFillFormField(p *instruction.FillFormField) instruction.Result {
	if !e.cfg.EnableFormManipulation {
		return instruction.Fail(errFormDisabled)
	}

	el, ok := e.find(p.Selector)
	if !ok {
		return notFound(p.Selector)
	}
	if tag := el.Tag(); tag != "input" && tag != "textarea" {
		return instruction.Fail(fmt.Sprintf("Element is not a form field: %s", p.Selector))
	}

	el.SetValue(p.Value)
	if p.Focus {
		el.Focus()
	}
	if p.TriggerEvents {
		// input then change, in that order: reactive frameworks bind to
		// input for state and change for commit.
		el.DispatchEvent("input")
		el.DispatchEvent("change")
	}

	return instruction.Succeed("Field filled")
}

func (e *Executor) execElementTarget(t instruction.Type, p *instruction.ElementTarget) instruction.Result {
	el, ok := e.find(p.Selector)
	if !ok {
		return notFound(p.Selector)
	}

	switch t {
	case instruction.TypeHighlightElement:
		el.AddClass("cb-highlight")
		if p.Message != "" {
			e.showTooltip(el, p.Message, time.Duration(p.Duration)*time.Millisecond)
		}
		if p.Duration > 0 {
			e.sched.After(time.Duration(p.Duration)*time.Millisecond, func() {
				el.RemoveClass("cb-highlight")
			})
		}
		return instruction.Succeed("Element highlighted")

	case instruction.TypeScrollToElement:
		el.ScrollIntoView(p.Smooth)
		return instruction.Succeed("Scrolled to element")

	case instruction.TypeClickElement:
		el.Click()
		return instruction.Succeed("Element clicked")
	}

	return instruction.Fail(fmt.Sprintf("Unknown instruction type: %s", t))
}
