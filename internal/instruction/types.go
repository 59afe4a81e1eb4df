package instruction

import (
	"github.com/contextbridge/backend/internal/shared/id"
	"github.com/contextbridge/backend/internal/types"
)

// Type discriminates the instruction union. The tag set is closed: the
// decoder rejects anything else.
type Type string

const (
	TypeFormAssistance         Type = "form_assistance"
	TypeNavigationSuggestion   Type = "navigation_suggestion"
	TypeContentInstruction     Type = "content_instruction"
	TypeContextualNotification Type = "contextual_notification"
	TypeHighlightElement       Type = "highlight_element"
	TypeScrollToElement        Type = "scroll_to_element"
	TypeClickElement           Type = "click_element"
	TypeFillFormField          Type = "fill_form_field"
	TypeShowTooltip            Type = "show_tooltip"
	TypeShowModal              Type = "show_modal"
	TypeRedirect               Type = "redirect"
	TypeCustom                 Type = "custom"
)

// Known reports whether t is in the closed tag set.
func (t Type) Known() bool {
	switch t {
	case TypeFormAssistance, TypeNavigationSuggestion, TypeContentInstruction,
		TypeContextualNotification, TypeHighlightElement, TypeScrollToElement,
		TypeClickElement, TypeFillFormField, TypeShowTooltip, TypeShowModal,
		TypeRedirect, TypeCustom:
		return true
	}
	return false
}

// Priority orders instructions for display purposes only; execution order
// is always arrival order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Origin carries metadata about where an instruction came from.
type Origin struct {
	URL       string `json:"url,omitempty"`
	PageTitle string `json:"pageTitle,omitempty"`
	TriggerID string `json:"triggerId,omitempty"`
}

// Instruction is a single backend-authored directive for the frontend.
// ID is unique within a session's pending+active set; it keys the
// executor's artifact registry so re-delivery and cleanup are idempotent.
type Instruction struct {
	ID        string   `json:"id"`
	Type      Type     `json:"type"`
	Timestamp int64    `json:"timestamp"`
	Priority  Priority `json:"priority,omitempty"`
	Context   *Origin  `json:"context,omitempty"`
	Data      Payload  `json:"data"`
}

// New creates an instruction with a generated ID and current timestamp.
func New(t Type, data Payload) Instruction {
	return Instruction{
		ID:        id.NewInstructionID().String(),
		Type:      t,
		Timestamp: types.NowMillis(),
		Data:      data,
	}
}
