package vault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sm36384/Phoenix/governor/internal/browser"
	"github.com/Sm36384/Phoenix/governor/internal/store"
)

// DefaultTTL is how long a saved session stays usable.
const DefaultTTL = 7 * 24 * time.Hour

// Record is the persisted cookie form. Optional fields are pointers so a
// missing value can be told apart from false or zero.
type Record struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain,omitempty"`
	Path     string   `json:"path,omitempty"`
	Expires  *float64 `json:"expires,omitempty"`
	HTTPOnly *bool    `json:"httpOnly,omitempty"`
	Secure   *bool    `json:"secure,omitempty"`
	SameSite string   `json:"sameSite,omitempty"`
}

// Cookie applies the injection defaults: path "/", session expiry (-1),
// httpOnly false, secure true, sameSite Lax.
func (r Record) Cookie() browser.Cookie {
	c := browser.Cookie{
		Name:     r.Name,
		Value:    r.Value,
		Domain:   r.Domain,
		Path:     r.Path,
		Expires:  -1,
		Secure:   true,
		SameSite: r.SameSite,
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if r.Expires != nil {
		c.Expires = *r.Expires
	}
	if r.HTTPOnly != nil {
		c.HTTPOnly = *r.HTTPOnly
	}
	if r.Secure != nil {
		c.Secure = *r.Secure
	}
	if c.SameSite == "" {
		c.SameSite = "Lax"
	}
	return c
}

// RecordOf captures every field of a live browser cookie.
func RecordOf(c browser.Cookie) Record {
	exp, httpOnly, secure := c.Expires, c.HTTPOnly, c.Secure
	return Record{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  &exp,
		HTTPOnly: &httpOnly,
		Secure:   &secure,
		SameSite: c.SameSite,
	}
}

// SessionStore is the persistence the vault needs.
type SessionStore interface {
	SaveSession(ctx context.Context, sess *store.Session) error
	GetSession(ctx context.Context, hubID, sourceID string) (*store.Session, error)
}

// Session is a decrypted, unexpired saved session.
type Session struct {
	Cookies   []browser.Cookie
	UserAgent string
	ExpiresAt time.Time
}

// Vault saves and restores sessions.
type Vault struct {
	store  SessionStore
	cipher *Cipher
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option { return func(v *Vault) { v.ttl = d } }

// WithClock sets the clock used for expiry.
func WithClock(fn func() time.Time) Option { return func(v *Vault) { v.now = fn } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(v *Vault) { v.logger = l } }

// New creates a Vault.
func New(st SessionStore, c *Cipher, opts ...Option) *Vault {
	v := &Vault{store: st, cipher: c, ttl: DefaultTTL, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Save encrypts cookies and upserts them for (hub, source) with a fresh
// expiry.
func (v *Vault) Save(ctx context.Context, hub, source string, cookies []browser.Cookie, userAgent string) error {
	records := make([]Record, 0, len(cookies))
	for _, c := range cookies {
		records = append(records, RecordOf(c))
	}
	plain, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("vault: marshal cookies: %w", err)
	}
	enc, err := v.cipher.Encrypt(plain)
	if err != nil {
		return err
	}
	return v.store.SaveSession(ctx, &store.Session{
		HubID:            hub,
		SourceID:         source,
		CookiesEncrypted: enc,
		UserAgent:        userAgent,
		ExpiresAt:        v.now().Add(v.ttl).UnixMilli(),
	})
}

// Load returns the saved session, or nil when none exists or it expired.
// An undecodable payload yields a session with no cookies.
func (v *Vault) Load(ctx context.Context, hub, source string) (*Session, error) {
	row, err := v.store.GetSession(ctx, hub, source)
	if err != nil {
		return nil, fmt.Errorf("vault: load %s/%s: %w", hub, source, err)
	}
	if row == nil || row.CookiesEncrypted == "" {
		return nil, nil
	}
	expires := time.UnixMilli(row.ExpiresAt)
	if !v.now().Before(expires) {
		return nil, nil
	}

	records := v.decode(row.CookiesEncrypted)
	cookies := make([]browser.Cookie, 0, len(records))
	for _, r := range records {
		cookies = append(cookies, r.Cookie())
	}
	return &Session{Cookies: cookies, UserAgent: row.UserAgent, ExpiresAt: expires}, nil
}

// decode tries the encrypted form, then the legacy plain base64 JSON form,
// then gives up with an empty set.
func (v *Vault) decode(encoded string) []Record {
	var records []Record
	if plain, err := v.cipher.Decrypt(encoded); err == nil {
		if json.Unmarshal(plain, &records) == nil {
			return records
		}
	}
	if raw, err := base64.StdEncoding.DecodeString(encoded); err == nil {
		if json.Unmarshal(raw, &records) == nil {
			v.logger.Warn("vault: legacy unencrypted session payload")
			return records
		}
	}
	v.logger.Warn("vault: undecodable session payload, starting fresh")
	return nil
}

// Inject loads the saved session and adds its cookies to page. It returns
// nil when there was nothing to inject.
func (v *Vault) Inject(ctx context.Context, page browser.Page, hub, source string) (*Session, error) {
	sess, err := v.Load(ctx, hub, source)
	if err != nil || sess == nil || len(sess.Cookies) == 0 {
		return nil, err
	}
	if err := page.AddCookies(ctx, sess.Cookies); err != nil {
		return nil, fmt.Errorf("vault: inject cookies: %w", err)
	}
	return sess, nil
}
