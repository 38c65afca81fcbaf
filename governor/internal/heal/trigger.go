package heal

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/Sm36384/Phoenix/governor/internal/extract"
)

// Reason is why a heal was triggered.
type Reason string

const (
	ReasonNullField        Reason = "null_field"
	ReasonSelectorNotFound Reason = "selector_not_found"
	ReasonHTTP403          Reason = "http_403"
	ReasonHTTP404          Reason = "http_404"
	ReasonTimeout          Reason = "timeout"
)

// Valid reports whether r is one of the known reasons.
func (r Reason) Valid() bool {
	switch r {
	case ReasonNullField, ReasonSelectorNotFound, ReasonHTTP403, ReasonHTTP404, ReasonTimeout:
		return true
	}
	return false
}

// Classify maps a failed extraction to a trigger reason. status is the HTTP
// status of the page (0 if unknown) and takes precedence.
func Classify(err error, status int) Reason {
	switch status {
	case http.StatusForbidden:
		return ReasonHTTP403
	case http.StatusNotFound:
		return ReasonHTTP404
	}

	var timeout interface{ Timeout() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ReasonTimeout
	case errors.As(err, &timeout) && timeout.Timeout():
		return ReasonTimeout
	case errors.Is(err, extract.ErrEmpty):
		return ReasonNullField
	}
	return ReasonSelectorNotFound
}
