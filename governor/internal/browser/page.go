// Package browser defines the narrow page capability the governor drives
// (navigation, evaluation, pointer, content, cookies, screenshots) and a
// go-rod implementation with stealth evasions.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
)

// Page is the browser surface used by the behavior protocol, the fail-safe
// monitor, the session vault and the self-healing engine.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Evaluate runs a JS function expression and returns its JSON result.
	Evaluate(ctx context.Context, js string, args ...any) (json.RawMessage, error)
	PointerMove(ctx context.Context, x, y float64) error
	Content(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	// Status is the HTTP status of the last navigation, 0 if unknown.
	Status(ctx context.Context) (int, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	AddCookies(ctx context.Context, cookies []Cookie) error
}

// Session is a launched browser identity with one page.
type Session interface {
	Page
	Identity() Identity
	Close() error
}

// Launcher starts a browser under an identity.
type Launcher interface {
	Launch(ctx context.Context, id Identity) (Session, error)
}

// Proxy is an upstream proxy endpoint.
type Proxy struct {
	Server   string `yaml:"server" json:"server"`
	Username string `yaml:"username,omitempty" json:"-"`
	Password string `yaml:"password,omitempty" json:"-"`
}

// Identity is the externally visible fingerprint of a session.
type Identity struct {
	Proxy     Proxy  `json:"proxy"`
	UserAgent string `json:"user_agent"`
	Rotated   bool   `json:"rotated"`
}

// Cookie is a browser cookie as persisted by the session vault.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"` // unix seconds, -1 for session cookies
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"` // Strict, Lax or None
}

// EvalFloat evaluates js and decodes a numeric result.
func EvalFloat(ctx context.Context, p Page, js string, args ...any) (float64, error) {
	raw, err := p.Evaluate(ctx, js, args...)
	if err != nil {
		return 0, err
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("browser: decode number %q: %w", raw, err)
	}
	return f, nil
}

// Viewport is the inner window size.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ViewportSize reads window.innerWidth/innerHeight.
func ViewportSize(ctx context.Context, p Page) (Viewport, error) {
	raw, err := p.Evaluate(ctx, `() => ({ width: window.innerWidth, height: window.innerHeight })`)
	if err != nil {
		return Viewport{}, err
	}
	var v Viewport
	if err := json.Unmarshal(raw, &v); err != nil {
		return Viewport{}, fmt.Errorf("browser: decode viewport: %w", err)
	}
	return v, nil
}
