package dom

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// MaxHTMLSize limits HTML input to 10MB to prevent memory exhaustion.
const MaxHTMLSize = 10 * 1024 * 1024

// Scroll records a scroll-into-view request.
type Scroll struct {
	ElementID string
	Smooth    bool
}

// Memory is an in-memory Document over a parsed HTML tree.
type Memory struct {
	mu        sync.Mutex
	doc       *goquery.Document
	sanitizer *bluemonday.Policy

	events   map[string][]string
	clicks   map[string]int
	focused  string
	scrolls  []Scroll
	location string
	idSeq    int
}

// LoadHTML parses HTML with automatic charset detection into a Memory
// document.
func LoadHTML(htmlStr string) (*Memory, error) {
	if htmlStr == "" {
		return nil, fmt.Errorf("html content required")
	}
	if len(htmlStr) > MaxHTMLSize {
		return nil, fmt.Errorf("html exceeds maximum size of %d bytes", MaxHTMLSize)
	}

	data := []byte(htmlStr)
	doc, err := parseWithCharset(data)
	if err != nil {
		return nil, err
	}

	return &Memory{
		doc:       doc,
		sanitizer: bluemonday.UGCPolicy(),
		events:    make(map[string][]string),
		clicks:    make(map[string]int),
	}, nil
}

func parseWithCharset(data []byte) (*goquery.Document, error) {
	detected := detectCharset(data)
	reader, err := charset.NewReader(bytes.NewReader(data), detected)
	if err != nil {
		// Fallback to direct parsing
		return goquery.NewDocumentFromReader(bytes.NewReader(data))
	}
	return goquery.NewDocumentFromReader(reader)
}

func detectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// Find resolves a CSS selector to the first match. Invalid selectors are
// treated as not-found, never a panic.
func (m *Memory) Find(selector string) (Element, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, false
	}
	sel := m.doc.FindMatcher(matcher)
	if sel.Length() == 0 {
		return nil, false
	}
	return &memElement{doc: m, node: sel.Nodes[0]}, true
}

// CreateElement creates an element and appends it to the body.
func (m *Memory) CreateElement(tag, elemID string, classes ...string) Element {
	m.mu.Lock()
	defer m.mu.Unlock()

	node := m.newNode(tag, elemID, classes)
	if body := m.doc.Find("body"); body.Length() > 0 {
		body.Nodes[0].AppendChild(node)
	}
	return &memElement{doc: m, node: node}
}

// CreateElementAfter creates an element as the next sibling of target.
func (m *Memory) CreateElementAfter(target Element, tag, elemID string, classes ...string) Element {
	m.mu.Lock()
	defer m.mu.Unlock()

	node := m.newNode(tag, elemID, classes)
	tn := target.(*memElement).node
	if tn.Parent != nil {
		if tn.NextSibling != nil {
			tn.Parent.InsertBefore(node, tn.NextSibling)
		} else {
			tn.Parent.AppendChild(node)
		}
	}
	return &memElement{doc: m, node: node}
}

// CreateElementIn creates an element as the last child of parent.
func (m *Memory) CreateElementIn(parent Element, tag, elemID string, classes ...string) Element {
	m.mu.Lock()
	defer m.mu.Unlock()

	node := m.newNode(tag, elemID, classes)
	parent.(*memElement).node.AppendChild(node)
	return &memElement{doc: m, node: node}
}

// Remove detaches an element from the tree. Removing an already-detached
// element is a no-op.
func (m *Memory) Remove(el Element) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := el.(*memElement).node
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Navigate records a location change.
func (m *Memory) Navigate(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.location = url
}

// Location returns the last navigated URL, empty when none.
func (m *Memory) Location() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.location
}

// EventsFor returns the synthetic events dispatched on an element, in
// dispatch order.
func (m *Memory) EventsFor(elemID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events[elemID]...)
}

// Clicks returns how many synthetic clicks an element received.
func (m *Memory) Clicks(elemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clicks[elemID]
}

// Focused returns the id of the focused element, empty when none.
func (m *Memory) Focused() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focused
}

// Scrolls returns recorded scroll-into-view requests.
func (m *Memory) Scrolls() []Scroll {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Scroll(nil), m.scrolls...)
}

// Render serializes the current tree back to HTML.
func (m *Memory) Render() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.Html()
}

func (m *Memory) newNode(tag, elemID string, classes []string) *html.Node {
	node := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	if elemID != "" {
		setAttr(node, "id", elemID)
	}
	if len(classes) > 0 {
		setAttr(node, "class", strings.Join(classes, " "))
	}
	return node
}

// nextID synthesizes an id for anonymous elements. Caller holds the lock.
func (m *Memory) nextID() string {
	m.idSeq++
	return fmt.Sprintf("el_%d", m.idSeq)
}

// memElement implements Element over a *html.Node.
type memElement struct {
	doc  *Memory
	node *html.Node
}

func (e *memElement) ID() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	if id := getAttr(e.node, "id"); id != "" {
		return id
	}
	id := e.doc.nextID()
	setAttr(e.node, "id", id)
	return id
}

func (e *memElement) Tag() string {
	return e.node.Data
}

func (e *memElement) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return nodeText(e.node)
}

func (e *memElement) SetText(s string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	removeChildren(e.node)
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: s})
}

func (e *memElement) SetHTML(fragment string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	clean := e.doc.sanitizer.Sanitize(fragment)
	nodes, err := html.ParseFragment(strings.NewReader(clean), e.node)
	if err != nil {
		return
	}
	removeChildren(e.node)
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
}

func (e *memElement) AddClass(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	classes := strings.Fields(getAttr(e.node, "class"))
	for _, c := range classes {
		if c == name {
			return
		}
	}
	setAttr(e.node, "class", strings.TrimSpace(strings.Join(append(classes, name), " ")))
}

func (e *memElement) RemoveClass(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	classes := strings.Fields(getAttr(e.node, "class"))
	kept := classes[:0]
	for _, c := range classes {
		if c != name {
			kept = append(kept, c)
		}
	}
	setAttr(e.node, "class", strings.Join(kept, " "))
}

func (e *memElement) HasClass(name string) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	for _, c := range strings.Fields(getAttr(e.node, "class")) {
		if c == name {
			return true
		}
	}
	return false
}

func (e *memElement) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (e *memElement) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	setAttr(e.node, name, value)
}

func (e *memElement) Value() string {
	if e.Tag() == "textarea" {
		return e.Text()
	}
	v, _ := e.Attr("value")
	return v
}

func (e *memElement) SetValue(v string) {
	if e.Tag() == "textarea" {
		e.SetText(v)
		return
	}
	e.SetAttr("value", v)
}

func (e *memElement) Focus() {
	id := e.ID()
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.focused = id
}

func (e *memElement) Click() {
	id := e.ID()
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.clicks[id]++
	e.doc.events[id] = append(e.doc.events[id], "click")
}

func (e *memElement) ScrollIntoView(smooth bool) {
	id := e.ID()
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.scrolls = append(e.doc.scrolls, Scroll{ElementID: id, Smooth: smooth})
}

func (e *memElement) DispatchEvent(event string) {
	id := e.ID()
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.events[id] = append(e.doc.events[id], event)
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func nodeText(n *html.Node) string {
	var buf bytes.Buffer
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}

func removeChildren(n *html.Node) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
}
