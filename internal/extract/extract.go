// Package extract builds PageContext snapshots from raw HTML. It backs
// the server-side context endpoints: when a client posts HTML instead of
// a pre-built snapshot, the extractor parses it into the same shape the
// frontend would have sent.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"github.com/contextbridge/backend/internal/types"
)

// MaxHTMLSize caps parsed documents at 10MB.
const MaxHTMLSize = 10 * 1024 * 1024

// MaxTextLength caps the extracted text body.
const MaxTextLength = 50_000

// LoadHTML parses HTML with charset detection for non-UTF8 documents.
func LoadHTML(raw string) (*goquery.Document, error) {
	if len(raw) > MaxHTMLSize {
		return nil, fmt.Errorf("html exceeds maximum size of %d bytes", MaxHTMLSize)
	}

	data := []byte(raw)
	detector := chardet.NewTextDetector()
	if result, err := detector.DetectBest(data); err == nil && result.Charset != "UTF-8" {
		if reader, err := charset.NewReaderLabel(result.Charset, bytes.NewReader(data)); err == nil {
			return goquery.NewDocumentFromReader(reader)
		}
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(data))
}

// PageContext extracts a full context snapshot from HTML for a URL.
func PageContext(rawURL, html string) (*types.PageContext, error) {
	doc, err := LoadHTML(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	ctx := &types.PageContext{
		URL:       rawURL,
		Title:     strings.TrimSpace(doc.Find("title").First().Text()),
		Timestamp: types.NowMillis(),
		DOM: &types.DOMData{
			Text:   Text(doc),
			Forms:  Forms(doc),
			Inputs: Inputs(doc),
		},
		Metadata: Metadata(doc),
	}
	return ctx, nil
}

// Text extracts the visible text of the main content, with chrome
// elements removed and whitespace collapsed.
func Text(doc *goquery.Document) string {
	clone := goquery.CloneDocument(doc)
	clone.Find("script, style, nav, header, footer, aside, iframe, noscript").Remove()

	content := clone.Find("main, article").First()
	if content.Length() == 0 {
		content = clone.Find("body")
	}

	text := strings.Join(strings.Fields(content.Text()), " ")
	if len(text) > MaxTextLength {
		text = text[:MaxTextLength]
	}
	return text
}

// Forms extracts every form on the page with its fields.
func Forms(doc *goquery.Document) []types.FormData {
	var forms []types.FormData
	doc.Find("form").Each(func(i int, form *goquery.Selection) {
		f := types.FormData{
			ID:     form.AttrOr("id", ""),
			Name:   form.AttrOr("name", ""),
			Action: form.AttrOr("action", ""),
			Method: strings.ToUpper(form.AttrOr("method", "GET")),
			Fields: fields(form),
		}
		forms = append(forms, f)
	})
	return forms
}

// Inputs extracts inputs and textareas that live outside any form.
func Inputs(doc *goquery.Document) []types.InputField {
	var inputs []types.InputField
	doc.Find("input, textarea").Each(func(i int, s *goquery.Selection) {
		if s.ParentsFiltered("form").Length() > 0 {
			return
		}
		if field, ok := inputField(s); ok {
			inputs = append(inputs, field)
		}
	})
	return inputs
}

// Metadata collects meta tags keyed by name or property.
func Metadata(doc *goquery.Document) map[string]any {
	meta := make(map[string]any)
	doc.Find("meta").Each(func(i int, s *goquery.Selection) {
		key := s.AttrOr("name", s.AttrOr("property", ""))
		if key == "" {
			return
		}
		if content, ok := s.Attr("content"); ok {
			meta[key] = content
		}
	})
	if lang, ok := doc.Find("html").Attr("lang"); ok && lang != "" {
		meta["lang"] = lang
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func fields(form *goquery.Selection) []types.InputField {
	var out []types.InputField
	form.Find("input, textarea, select").Each(func(i int, s *goquery.Selection) {
		if field, ok := inputField(s); ok {
			out = append(out, field)
		}
	})
	return out
}

func inputField(s *goquery.Selection) (types.InputField, bool) {
	name := s.AttrOr("name", "")
	id := s.AttrOr("id", "")
	if name == "" && id == "" {
		return types.InputField{}, false
	}

	typ := s.AttrOr("type", "text")
	if s.Is("textarea") {
		typ = "textarea"
	} else if s.Is("select") {
		typ = "select"
	}

	return types.InputField{
		ID:          id,
		Name:        name,
		Type:        typ,
		Value:       s.AttrOr("value", ""),
		Placeholder: s.AttrOr("placeholder", ""),
		Required:    s.AttrOr("required", "") != "" || hasAttr(s, "required"),
	}, true
}

func hasAttr(s *goquery.Selection, name string) bool {
	_, ok := s.Attr(name)
	return ok
}
