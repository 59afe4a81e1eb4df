package types

// Page type classifications produced by the analyzer.
const (
	PageTypeForm      = "form"
	PageTypeCheckout  = "checkout"
	PageTypeDashboard = "dashboard"
	PageTypeContent   = "content"
	PageTypeError     = "error"
	PageTypeLoading   = "loading"
	PageTypeUnknown   = "unknown"
)

// User intent classifications.
const (
	IntentBrowsing    = "browsing"
	IntentPurchasing  = "purchasing"
	IntentFormFilling = "form_filling"
	IntentSearching   = "searching"
	IntentReading     = "reading"
)

// Issue is a problem identified on the page.
type Issue struct {
	Type     string `json:"type"`     // validation, usability, accessibility, performance
	Severity string `json:"severity"` // low, medium, high
	Message  string `json:"message"`
	Element  string `json:"element,omitempty"`
}

// Suggestion is a recommended follow-up from the analyzer.
type Suggestion struct {
	Type    string `json:"type"` // improvement, next_step, alternative
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// ContextAnalysis is the result of analyzing a page context.
type ContextAnalysis struct {
	PageType    string       `json:"pageType"`
	UserIntent  string       `json:"userIntent,omitempty"`
	Issues      []Issue      `json:"issues"`
	Suggestions []Suggestion `json:"suggestions"`
	Confidence  float64      `json:"confidence"`
}
