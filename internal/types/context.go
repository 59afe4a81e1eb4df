package types

// InputField describes a single input or textarea on the page.
type InputField struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type"`
	Value       string `json:"value,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required"`
}

// FormData describes a form and its fields.
type FormData struct {
	ID     string       `json:"id,omitempty"`
	Name   string       `json:"name,omitempty"`
	Action string       `json:"action,omitempty"`
	Method string       `json:"method,omitempty"`
	Fields []InputField `json:"fields"`
}

// DOMData holds the extracted DOM content of a page.
type DOMData struct {
	Text   string       `json:"text"`
	HTML   string       `json:"html,omitempty"`
	Forms  []FormData   `json:"forms"`
	Inputs []InputField `json:"inputs"`
}

// Viewport holds viewport dimensions and scroll position.
type Viewport struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	ScrollX int `json:"scrollX"`
	ScrollY int `json:"scrollY"`
}

// PageContext is a snapshot of page state sent from frontend to backend.
// URL, Title and Timestamp are always present; the rest is best-effort.
type PageContext struct {
	URL       string         `json:"url"`
	Title     string         `json:"title"`
	Timestamp int64          `json:"timestamp"`
	DOM       *DOMData       `json:"dom,omitempty"`
	Viewport  *Viewport      `json:"viewport,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ContextResponse pairs a context snapshot with an optional screenshot.
type ContextResponse struct {
	Context    PageContext `json:"context"`
	Screenshot string      `json:"screenshot,omitempty"`
}
