// Package dom abstracts the live page behind a small capability interface
// so the instruction executor is testable without a browser. The in-memory
// implementation parses real HTML (goquery over x/net/html) and records
// synthetic events, clicks, focus and scrolls for assertions.
package dom

// Element is a handle to a single live element.
type Element interface {
	// ID returns the element's id attribute, synthesizing and assigning
	// one when the element has none. Tooltip keying relies on this.
	ID() string
	Tag() string
	Text() string
	SetText(s string)
	// SetHTML replaces the element's children with parsed (and sanitized)
	// HTML content.
	SetHTML(fragment string)
	AddClass(name string)
	RemoveClass(name string)
	HasClass(name string) bool
	Attr(name string) (string, bool)
	SetAttr(name, value string)
	// Value reads and SetValue writes the value attribute of inputs and
	// the text content of textareas.
	Value() string
	SetValue(v string)
	Focus()
	Click()
	ScrollIntoView(smooth bool)
	// DispatchEvent fires a synthetic DOM event on the element.
	DispatchEvent(event string)
}

// Document is the capability surface the executor mutates the page through.
type Document interface {
	// Find resolves a CSS selector to the first matching element.
	Find(selector string) (Element, bool)
	// CreateElement creates an element, assigns id and classes, and
	// appends it to the body. Artifacts (notifications, modals) use this.
	CreateElement(tag, elemID string, classes ...string) Element
	// CreateElementAfter creates an element as the next sibling of target.
	// Tooltips attach near their target this way.
	CreateElementAfter(target Element, tag, elemID string, classes ...string) Element
	// CreateElementIn creates an element as the last child of parent, so
	// artifact sub-elements are removed along with their container.
	CreateElementIn(parent Element, tag, elemID string, classes ...string) Element
	Remove(el Element)
	// Navigate changes the document location (redirect instruction).
	Navigate(url string)
	Location() string
}
