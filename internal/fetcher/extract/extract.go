// Package extract turns an HTML document into records using CSS selectors.
package extract

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Field reads one value from an item element.
type Field struct {
	Name string
	// Selector is relative to the item; empty means the item itself.
	Selector string
	// Attr names an attribute to read; empty means the element text.
	Attr string
}

// Extractor applies an item selector and per-field selectors to a document.
type Extractor struct {
	item   string
	fields []Field
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// New validates the selectors and returns an Extractor.
func New(itemSelector string, fields []Field) (*Extractor, error) {
	if strings.TrimSpace(itemSelector) == "" {
		return nil, errors.New("item selector is required")
	}
	if len(fields) == 0 {
		return nil, errors.New("at least one field is required")
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, errors.New("field name is required")
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if err := checkSelector(f.Selector); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	if err := checkSelector(itemSelector); err != nil {
		return nil, fmt.Errorf("item selector: %w", err)
	}
	return &Extractor{item: itemSelector, fields: fields}, nil
}

// goquery silently matches nothing on a bad selector, so compile it here.
func checkSelector(sel string) error {
	if sel == "" {
		return nil
	}
	if _, err := cascadia.Compile(sel); err != nil {
		return fmt.Errorf("invalid selector %q: %w", sel, err)
	}
	return nil
}

// Fields returns the configured field names in order.
func (e *Extractor) Fields() []string {
	names := make([]string, len(e.fields))
	for i, f := range e.fields {
		names[i] = f.Name
	}
	return names
}

// Extract parses r as HTML and returns one row per item element, in document
// order. Relative href and src values are resolved against base when it is
// not nil.
func (e *Extractor) Extract(r io.Reader, base *url.URL) ([]map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return e.ExtractDocument(doc, base), nil
}

// ExtractDocument is Extract on an already parsed document.
func (e *Extractor) ExtractDocument(doc *goquery.Document, base *url.URL) []map[string]string {
	items := doc.Find(e.item)
	rows := make([]map[string]string, 0, items.Length())
	items.Each(func(_ int, item *goquery.Selection) {
		row := make(map[string]string, len(e.fields))
		for _, f := range e.fields {
			row[f.Name] = e.value(item, f, base)
		}
		rows = append(rows, row)
	})
	return rows
}

func (e *Extractor) value(item *goquery.Selection, f Field, base *url.URL) string {
	sel := item
	if f.Selector != "" {
		sel = item.Find(f.Selector).First()
	}
	if sel.Length() == 0 {
		return ""
	}
	if f.Attr == "" {
		return cleanText(sel.Text())
	}
	v, ok := sel.Attr(f.Attr)
	if !ok {
		return ""
	}
	v = strings.TrimSpace(v)
	if base != nil && (f.Attr == "href" || f.Attr == "src") && v != "" {
		if ref, err := url.Parse(v); err == nil {
			v = base.ResolveReference(ref).String()
		}
	}
	return v
}

func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	return innerWhitespace.ReplaceAllString(s, " ")
}
