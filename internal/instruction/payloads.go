package instruction

// Payload is the sealed interface implemented by every variant payload.
// Only types in this package satisfy it.
type Payload interface {
	isPayload()
}

// Action is a button attached to a notification or modal.
type Action struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
}

// Form assistance actions.
const (
	FormActionHighlightField = "highlight_field"
	FormActionValidateField  = "validate_field"
	FormActionSuggestValue   = "suggest_value"
	FormActionShowError      = "show_error"
)

// FormAssistance targets a form field with a highlight, validation hint,
// suggested value, or error message.
type FormAssistance struct {
	Action   string `json:"action"`
	Selector string `json:"selector"`
	Message  string `json:"message"`
	Value    string `json:"value,omitempty"`
}

// NavigationSuggestion proposes a navigation to the user via a
// notification, optionally gated on explicit confirmation.
type NavigationSuggestion struct {
	Message         string `json:"message"`
	URL             string `json:"url,omitempty"`
	ActionLabel     string `json:"actionLabel,omitempty"`
	ConfirmRequired bool   `json:"confirmRequired,omitempty"`
}

// Content instruction actions.
const (
	ContentActionShowTooltip      = "show_tooltip"
	ContentActionHighlightSection = "highlight_section"
	ContentActionAddOverlay       = "add_overlay"
	ContentActionReplaceContent   = "replace_content"
)

// ContentInstruction manipulates page content: tooltip, section highlight,
// full-page overlay, or content replacement, selected by Action.
type ContentInstruction struct {
	Action   string `json:"action"`
	Selector string `json:"selector,omitempty"`
	Content  string `json:"content"`
	Duration int    `json:"duration,omitempty"` // millis
}

// ContextualNotification renders a dismissible notification with zero or
// more action buttons. AutoClose is a tri-state: nil means the default
// (close after the standard timeout).
type ContextualNotification struct {
	Title     string   `json:"title,omitempty"`
	Message   string   `json:"message"`
	Duration  int      `json:"duration,omitempty"` // millis
	AutoClose *bool    `json:"autoClose,omitempty"`
	Actions   []Action `json:"actions,omitempty"`
}

// ElementTarget is the shared payload for highlight_element,
// scroll_to_element and click_element.
type ElementTarget struct {
	Selector string `json:"selector"`
	Message  string `json:"message,omitempty"`
	Duration int    `json:"duration,omitempty"` // millis
	Smooth   bool   `json:"smooth,omitempty"`
}

// FillFormField sets an input's value, optionally focusing it and firing
// synthetic input+change events for reactive frameworks.
type FillFormField struct {
	Selector      string `json:"selector"`
	Value         string `json:"value"`
	Focus         bool   `json:"focus,omitempty"`
	TriggerEvents bool   `json:"triggerEvents,omitempty"`
}

// Overlay is the shared payload for show_tooltip and show_modal. Tooltips
// require a Selector (they attach near the target element); modals are
// page-centered and ignore it.
type Overlay struct {
	Selector  string   `json:"selector,omitempty"`
	Title     string   `json:"title,omitempty"`
	Content   string   `json:"content"`
	Duration  int      `json:"duration,omitempty"` // millis
	AutoClose bool     `json:"autoClose,omitempty"`
	Closable  bool     `json:"closable,omitempty"`
	Actions   []Action `json:"actions,omitempty"`
}

// Redirect navigates the page after an optional delay, gated on
// confirmation when ConfirmRequired is set and a message is present.
type Redirect struct {
	URL             string `json:"url"`
	Delay           int    `json:"delay,omitempty"` // millis
	ConfirmRequired bool   `json:"confirmRequired,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Custom is the free-form escape hatch. The executor never interprets
// CustomType; it re-emits the instruction as an application event.
type Custom struct {
	CustomType string         `json:"customType"`
	Data       map[string]any `json:"data,omitempty"`
}

func (*FormAssistance) isPayload()         {}
func (*NavigationSuggestion) isPayload()   {}
func (*ContentInstruction) isPayload()     {}
func (*ContextualNotification) isPayload() {}
func (*ElementTarget) isPayload()          {}
func (*FillFormField) isPayload()          {}
func (*Overlay) isPayload()                {}
func (*Redirect) isPayload()               {}
func (*Custom) isPayload()                 {}
