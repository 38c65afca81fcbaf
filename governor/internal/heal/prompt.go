package heal

import (
	"fmt"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxMarkup bounds the markup sent with a text prompt.
const MaxMarkup = 80_000

var markupPolicy = newMarkupPolicy()

// newMarkupPolicy keeps structure and the attributes selectors hook onto,
// and drops scripts, styles and inline handlers.
func newMarkupPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("main", "header", "footer", "nav", "section", "article", "aside",
		"button", "form", "label", "time", "meta")
	p.AllowAttrs("class", "id", "role", "name", "itemprop", "aria-label", "content", "datetime").Globally()
	p.AllowDataAttributes()
	return p
}

// PrepareMarkup sanitizes markup and truncates it to MaxMarkup bytes on a
// rune boundary.
func PrepareMarkup(markup string) string {
	return truncate(markupPolicy.Sanitize(markup), MaxMarkup)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// TextPrompt asks for a selector given the page markup.
func TextPrompt(field, before, markup string) string {
	return fmt.Sprintf(`The previous CSS selector for the field %q failed.
Previous selector: %s

Below is the page HTML. Find the element that contains the value for %q (e.g. job title, company name, apply button). Return ONLY a valid CSS selector, nothing else.

HTML:
`+"```"+`
%s
`+"```"+`

CSS selector:`, field, or(before, "none"), field, PrepareMarkup(markup))
}

// VisionPrompt asks for a selector given a screenshot.
func VisionPrompt(field, before string) string {
	return fmt.Sprintf(`Look at this screenshot of a web page. The previous CSS selector for %q failed: %s. Find the new location of the %q element (e.g. job title, company name, button). Return ONLY one valid CSS selector, no other text.`,
		field, or(before, "none"), field)
}
