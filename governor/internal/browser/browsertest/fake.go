// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/Sm36384/Phoenix/governor/internal/browser"
)

// Page is a scripted browser.Page. Content is served per URL from Pages;
// unknown URLs serve Default. Scripts are answered by EvalFunc, or by the
// built-in answers for scroll height and viewport. NavigateErr fails every
// navigation before the URL loads; LoadErrs fails a navigation after its
// URL has loaded, like a load timeout on a partly rendered page.
type Page struct {
	mu sync.Mutex

	Pages        map[string]string
	Default      string
	StatusCode   int
	ScrollHeight float64
	Width        float64
	Height       float64
	Shot         []byte
	EvalFunc     func(js string, args ...any) (json.RawMessage, error)
	NavigateErr  error
	LoadErrs     map[string]error

	Visited []string
	Scripts []string
	Moves   [][2]float64
	Jar     []browser.Cookie
	Closed  bool
	Ident   browser.Identity
	current string
}

// NewPage returns a Page with a 1280x800 viewport and 3000px scroll height.
func NewPage() *Page {
	return &Page{
		Pages:        map[string]string{},
		ScrollHeight: 3000,
		Width:        1280,
		Height:       800,
		StatusCode:   200,
	}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.Visited = append(p.Visited, url)
	p.current = url
	return p.LoadErrs[url]
}

func (p *Page) Evaluate(ctx context.Context, js string, args ...any) (json.RawMessage, error) {
	p.mu.Lock()
	p.Scripts = append(p.Scripts, js)
	fn := p.EvalFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(js, args...)
	}
	switch {
	case strings.Contains(js, "scrollHeight"):
		return json.Marshal(p.ScrollHeight - p.Height)
	case strings.Contains(js, "innerWidth"):
		return json.Marshal(map[string]float64{"width": p.Width, "height": p.Height})
	}
	return json.RawMessage("null"), nil
}

func (p *Page) PointerMove(ctx context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Moves = append(p.Moves, [2]float64{x, y})
	return nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if html, ok := p.Pages[p.current]; ok {
		return html, nil
	}
	return p.Default, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *Page) Status(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.StatusCode, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return p.Shot, nil
}

func (p *Page) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Cookie(nil), p.Jar...), nil
}

func (p *Page) AddCookies(ctx context.Context, cookies []browser.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Jar = append(p.Jar, cookies...)
	return nil
}

func (p *Page) Identity() browser.Identity { return p.Ident }

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Launcher hands out pages built by New, recording every identity.
type Launcher struct {
	mu         sync.Mutex
	New        func(id browser.Identity) *Page
	Identities []browser.Identity
	Launched   []*Page
}

func (l *Launcher) Launch(ctx context.Context, id browser.Identity) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var p *Page
	if l.New != nil {
		p = l.New(id)
	} else {
		p = NewPage()
	}
	p.Ident = id
	l.Identities = append(l.Identities, id)
	l.Launched = append(l.Launched, p)
	return p, nil
}
