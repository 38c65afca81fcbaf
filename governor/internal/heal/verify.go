package heal

import (
	"context"

	"github.com/Sm36384/Phoenix/governor/internal/browser"
	"github.com/Sm36384/Phoenix/governor/internal/extract"
)

// Verifier confirms that selector extracts a plausible value from the live
// page. An error means verification could not run.
type Verifier func(ctx context.Context, selector string) (bool, error)

// PageVerifier re-reads the page content and accepts selector when it
// yields non-empty text.
func PageVerifier(page browser.Page) Verifier {
	return func(ctx context.Context, selector string) (bool, error) {
		markup, err := page.Content(ctx)
		if err != nil {
			return false, err
		}
		doc, err := extract.Parse(markup)
		if err != nil {
			return false, err
		}
		_, err = doc.Field(selector)
		return err == nil, nil
	}
}
