// Package extract reads field values out of page markup with CSS selectors.
//
// The pipeline: raw HTML → parse → match selector → collect visible text →
// clean. A field whose selector matches nothing and a field whose match is
// empty are distinct failures, since they trigger different heals.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrNoMatch means the selector matched no element.
	ErrNoMatch = errors.New("extract: selector matched nothing")
	// ErrEmpty means the matched element carries no value.
	ErrEmpty = errors.New("extract: matched element is empty")
	// ErrBadSelector means the selector does not compile.
	ErrBadSelector = errors.New("extract: invalid selector")
)

// Document is parsed page markup.
type Document struct {
	doc   *goquery.Document
	Title string
}

// Parse parses markup. The HTML5 parser accepts any input, so errors only
// come from a failing reader.
func Parse(markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("extract: parse HTML: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)
	return &Document{doc: doc, Title: CleanText(doc.Find("title").First().Text())}, nil
}

// Compile validates selector.
func Compile(selector string) (cascadia.Selector, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadSelector, selector, err)
	}
	return sel, nil
}

// Field returns the value of the first element matching selector: its
// visible text, or for valueless elements (meta, input) the content or
// value attribute.
func (d *Document) Field(selector string) (string, error) {
	sel, err := Compile(selector)
	if err != nil {
		return "", err
	}
	match := d.doc.FindMatcher(sel)
	if match.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoMatch, selector)
	}
	n := match.Nodes[0]
	v := CleanText(collectText(n))
	if v == "" {
		v = CleanText(attrValue(n))
	}
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrEmpty, selector)
	}
	return v, nil
}

// Fields extracts every field of selectors. Each field lands in exactly one
// of the two maps.
func (d *Document) Fields(selectors map[string]string) (values map[string]string, failed map[string]error) {
	values = make(map[string]string, len(selectors))
	failed = make(map[string]error)
	for field, selector := range selectors {
		v, err := d.Field(selector)
		if err != nil {
			failed[field] = err
			continue
		}
		values[field] = v
	}
	return values, failed
}

// collectText gathers visible text of a subtree, skipping script and style.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

func attrValue(n *html.Node) string {
	for _, key := range []string{"content", "value", "href"} {
		for _, a := range n.Attr {
			if a.Key == key {
				return a.Val
			}
		}
	}
	return ""
}

// CleanText removes zero-width characters and collapses whitespace.
func CleanText(text string) string {
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}
