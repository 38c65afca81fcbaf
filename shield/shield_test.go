package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Sm36384/Phoenix/idgen"
	"github.com/Sm36384/Phoenix/kit"
)

func newRouter(h http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	for _, mw := range Stack(nil, idgen.Sequence("trc_")) {
		r.Use(mw)
	}
	r.Get("/x", h)
	r.Post("/x", h)
	return r
}

func TestStack_SecurityHeadersAndTraceID(t *testing.T) {
	var seen string
	r := newRouter(func(w http.ResponseWriter, r *http.Request) {
		seen = kit.GetTraceID(r.Context())
		if kit.GetTransport(r.Context()) != "http" {
			t.Errorf("transport = %q", kit.GetTransport(r.Context()))
		}
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	for header, want := range map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "no-store",
		"X-Trace-ID":             "trc_1",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s: got %q, want %q", header, got, want)
		}
	}
	if seen != "trc_1" {
		t.Errorf("context trace id = %q", seen)
	}
}

func TestTraceID_ReusesIncoming(t *testing.T) {
	r := newRouter(func(http.ResponseWriter, *http.Request) {})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Trace-ID", "upstream-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Trace-ID"); got != "upstream-42" {
		t.Errorf("X-Trace-ID = %q", got)
	}
}

func TestHeadToGet(t *testing.T) {
	r := newRouter(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/x", nil))
	if w.Code != http.StatusOK {
		t.Errorf("HEAD status = %d, want 200", w.Code)
	}
}

func TestLimitBody(t *testing.T) {
	r := newRouter(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
		}
	})
	body := strings.NewReader(strings.Repeat("a", MaxBody+1))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", body))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}
