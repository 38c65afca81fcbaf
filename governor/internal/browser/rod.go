package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the rod launcher.
type Config struct {
	// RemoteURL is the DevTools WebSocket of an external Chrome. Empty
	// launches a local Chrome per identity.
	RemoteURL string `yaml:"remote_url"`

	// Headful runs a visible browser instead of headless.
	Headful bool `yaml:"headful"`

	// BlockResources lists resource types to block (images, fonts, media,
	// stylesheets).
	BlockResources []string `yaml:"block_resources"`

	// NavigateTimeout bounds each navigation. Default: 30s.
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RodLauncher launches one Chrome per identity so the proxy can change on
// rotation.
type RodLauncher struct {
	cfg Config
}

// NewRodLauncher creates a launcher.
func NewRodLauncher(cfg Config) *RodLauncher {
	cfg.defaults()
	return &RodLauncher{cfg: cfg}
}

// Launch starts Chrome with the identity's proxy, opens a stealth page and
// applies the user agent.
func (l *RodLauncher) Launch(ctx context.Context, id Identity) (Session, error) {
	log := l.cfg.Logger

	var wsURL string
	var lnch *launcher.Launcher
	if l.cfg.RemoteURL != "" {
		wsURL = l.cfg.RemoteURL
		if id.Proxy.Server != "" {
			log.Warn("browser: proxy ignored for remote chrome", "proxy", id.Proxy.Server)
		}
	} else {
		lnch = launcher.New().Context(ctx).
			Headless(!l.cfg.Headful).
			Set("disable-blink-features", "AutomationControlled")
		if id.Proxy.Server != "" {
			lnch = lnch.Proxy(id.Proxy.Server)
		}
		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if id.Proxy.Username != "" {
		wait := b.HandleAuth(id.Proxy.Username, id.Proxy.Password)
		go func() { _ = wait() }()
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: stealth page: %w", err)
	}

	if id.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: id.UserAgent}); err != nil {
			log.Warn("browser: set user agent failed", "error", err)
		}
	}
	if len(l.cfg.BlockResources) > 0 {
		newBlockList(l.cfg.BlockResources).hijack(page)
	}

	log.Debug("browser: identity launched", "proxy", id.Proxy.Server, "rotated", id.Rotated)
	return &rodSession{browser: b, lnch: lnch, page: page, id: id, cfg: l.cfg}, nil
}

type rodSession struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
	id      Identity
	cfg     Config
}

func (s *rodSession) Identity() Identity { return s.id }

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigateTimeout)
	defer cancel()

	p := s.page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		s.cfg.Logger.Warn("browser: wait load", "url", url, "error", err)
	}
	return nil
}

func (s *rodSession) Evaluate(ctx context.Context, js string, args ...any) (json.RawMessage, error) {
	res, err := s.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, fmt.Errorf("browser: eval: %w", err)
	}
	return json.RawMessage(res.Value.JSON("", "")), nil
}

func (s *rodSession) PointerMove(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Mouse.MoveTo(proto.Point{X: x, Y: y})
}

func (s *rodSession) Content(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: content: %w", err)
	}
	return html, nil
}

func (s *rodSession) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

func (s *rodSession) Status(ctx context.Context) (int, error) {
	res, err := s.page.Context(ctx).Eval(`() => {
		const e = performance.getEntriesByType('navigation')[0];
		return e && e.responseStatus ? e.responseStatus : 0;
	}`)
	if err != nil {
		return 0, fmt.Errorf("browser: status: %w", err)
	}
	return res.Value.Int(), nil
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	img, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return img, nil
}

func (s *rodSession) Cookies(ctx context.Context) ([]Cookie, error) {
	raw, err := s.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("browser: cookies: %w", err)
	}
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out, nil
}

func (s *rodSession) AddCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: sameSite(c.SameSite),
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	if err := s.page.Context(ctx).SetCookies(params); err != nil {
		return fmt.Errorf("browser: set cookies: %w", err)
	}
	return nil
}

func (s *rodSession) Close() error {
	if s.page != nil {
		_ = s.page.Close()
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
	}
	return nil
}

func sameSite(v string) proto.NetworkCookieSameSite {
	switch v {
	case "Strict", "strict":
		return proto.NetworkCookieSameSiteStrict
	case "None", "none":
		return proto.NetworkCookieSameSiteNone
	default:
		return proto.NetworkCookieSameSiteLax
	}
}
