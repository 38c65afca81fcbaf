package heal

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Sm36384/Phoenix/governor/internal/extract"
)

// MaxSelectorLen bounds an accepted selector.
const MaxSelectorLen = 500

var (
	// ErrMalformedResponse means the model output holds no usable selector.
	ErrMalformedResponse = errors.New("heal: malformed model response")
	// ErrNotConfigured means no language model is configured.
	ErrNotConfigured = errors.New("llm not configured")
)

var (
	fenceOpen    = regexp.MustCompile("^```(?:[A-Za-z0-9_-]*[ \t]*\r?\n)?")
	fenceClose   = regexp.MustCompile("\r?\n?```[ \t]*$")
	selectorChar = regexp.MustCompile(`[A-Za-z0-9.#\[\]=:>+~*_-]`)
)

// ParseSelector extracts one CSS selector from untrusted model output:
// strip code fences, take the first non-empty line, then reject it when it
// is too long, has no selector characters or does not compile.
func ParseSelector(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")

	var line string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = strings.Trim(line, "`")
	line = strings.TrimSpace(line)

	switch {
	case line == "":
		return "", fmt.Errorf("%w: empty", ErrMalformedResponse)
	case len(line) > MaxSelectorLen:
		return "", fmt.Errorf("%w: %d chars", ErrMalformedResponse, len(line))
	case !selectorChar.MatchString(line):
		return "", fmt.Errorf("%w: %q", ErrMalformedResponse, line)
	}
	if _, err := extract.Compile(line); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return line, nil
}
