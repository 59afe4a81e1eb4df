package instruction

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrUnknownType marks instructions whose type tag is outside the closed
// set. Decode errors wrap it so callers can distinguish unknown-tag from
// malformed-payload failures.
var ErrUnknownType = errors.New("unknown instruction type")

// DecodeError describes a structurally invalid instruction payload.
type DecodeError struct {
	Type   Type
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s instruction: field %q %s", e.Type, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s instruction: %s", e.Type, e.Reason)
}

// wire mirrors Instruction with the payload left raw for two-phase decode.
type wire struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Priority  Priority        `json:"priority,omitempty"`
	Context   *Origin         `json:"context,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Decode parses and validates a wire instruction. It rejects unknown type
// tags and payloads missing variant-required fields; it never applies
// silent defaults.
func Decode(data []byte) (Instruction, error) {
	var w wire
	if err := sonic.Unmarshal(data, &w); err != nil {
		return Instruction{}, fmt.Errorf("malformed instruction: %w", err)
	}

	if !w.Type.Known() {
		return Instruction{}, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
	if w.ID == "" {
		return Instruction{}, &DecodeError{Type: w.Type, Field: "id", Reason: "is required"}
	}

	payload := emptyPayload(w.Type)
	if len(w.Data) > 0 {
		if err := sonic.Unmarshal(w.Data, payload); err != nil {
			return Instruction{}, &DecodeError{Type: w.Type, Reason: fmt.Sprintf("malformed data: %v", err)}
		}
	}

	in := Instruction{
		ID:        w.ID,
		Type:      w.Type,
		Timestamp: w.Timestamp,
		Priority:  w.Priority,
		Context:   w.Context,
		Data:      payload,
	}
	if err := in.Validate(); err != nil {
		return Instruction{}, err
	}
	return in, nil
}

// Encode serializes an instruction to its wire JSON.
func Encode(in Instruction) ([]byte, error) {
	return sonic.Marshal(in)
}

// emptyPayload returns a zero payload of the shape fixed by t. Callers must
// have checked t.Known() first.
func emptyPayload(t Type) Payload {
	switch t {
	case TypeFormAssistance:
		return &FormAssistance{}
	case TypeNavigationSuggestion:
		return &NavigationSuggestion{}
	case TypeContentInstruction:
		return &ContentInstruction{}
	case TypeContextualNotification:
		return &ContextualNotification{}
	case TypeHighlightElement, TypeScrollToElement, TypeClickElement:
		return &ElementTarget{}
	case TypeFillFormField:
		return &FillFormField{}
	case TypeShowTooltip, TypeShowModal:
		return &Overlay{}
	case TypeRedirect:
		return &Redirect{}
	case TypeCustom:
		return &Custom{}
	}
	return nil
}

// Validate checks variant-required fields and tag/payload coherence.
func (in Instruction) Validate() error {
	if !in.Type.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}

	fail := func(field, reason string) error {
		return &DecodeError{Type: in.Type, Field: field, Reason: reason}
	}

	switch p := in.Data.(type) {
	case *FormAssistance:
		if in.Type != TypeFormAssistance {
			return fail("data", "does not match type tag")
		}
		if p.Action == "" {
			return fail("action", "is required")
		}
		if p.Selector == "" {
			return fail("selector", "is required")
		}
		if p.Message == "" {
			return fail("message", "is required")
		}
	case *NavigationSuggestion:
		if in.Type != TypeNavigationSuggestion {
			return fail("data", "does not match type tag")
		}
		if p.Message == "" {
			return fail("message", "is required")
		}
	case *ContentInstruction:
		if in.Type != TypeContentInstruction {
			return fail("data", "does not match type tag")
		}
		if p.Action == "" {
			return fail("action", "is required")
		}
		if p.Content == "" {
			return fail("content", "is required")
		}
	case *ContextualNotification:
		if in.Type != TypeContextualNotification {
			return fail("data", "does not match type tag")
		}
		if p.Message == "" {
			return fail("message", "is required")
		}
	case *ElementTarget:
		if in.Type != TypeHighlightElement && in.Type != TypeScrollToElement && in.Type != TypeClickElement {
			return fail("data", "does not match type tag")
		}
		if p.Selector == "" {
			return fail("selector", "is required")
		}
	case *FillFormField:
		if in.Type != TypeFillFormField {
			return fail("data", "does not match type tag")
		}
		if p.Selector == "" {
			return fail("selector", "is required")
		}
	case *Overlay:
		if in.Type != TypeShowTooltip && in.Type != TypeShowModal {
			return fail("data", "does not match type tag")
		}
		if p.Content == "" {
			return fail("content", "is required")
		}
		if in.Type == TypeShowTooltip && p.Selector == "" {
			return fail("selector", "is required for tooltips")
		}
	case *Redirect:
		if in.Type != TypeRedirect {
			return fail("data", "does not match type tag")
		}
		if p.URL == "" {
			return fail("url", "is required")
		}
	case *Custom:
		if in.Type != TypeCustom {
			return fail("data", "does not match type tag")
		}
		if p.CustomType == "" {
			return fail("customType", "is required")
		}
	case nil:
		return fail("data", "is required")
	default:
		return fail("data", "has unrecognized payload shape")
	}
	return nil
}
