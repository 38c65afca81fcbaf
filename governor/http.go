package governor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Sm36384/Phoenix/shield"
)

// Handler returns the JSON status feed.
//
//	GET  /health
//	GET  /api/sources
//	GET  /api/sources/{id}
//	GET  /api/sources/{id}/heal-events?limit=
//	GET  /api/sources/{id}/selectors
//	GET  /api/hubs
//	GET  /api/breakers
//	GET  /api/ratelimit/{source}
//	GET  /api/traces/recent?limit=
//	GET  /api/events?hub=&limit=
//	POST /api/discover   {"name":..,"company":..}
func (g *Governor) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(g.logger, g.traceIDs) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"status": "ok", "open_hubs": g.gate.OpenHubs()})
	})

	r.Route("/api/sources", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			list, err := g.Sources(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, list)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			src, err := g.Source(r.Context(), id)
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if src == nil {
				writeError(w, 404, fmt.Errorf("unknown source %q", id))
				return
			}
			writeJSON(w, 200, src)
		})
		r.Get("/{id}/heal-events", func(w http.ResponseWriter, r *http.Request) {
			list, err := g.HealEvents(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", DefaultListLimit))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, list)
		})
		r.Get("/{id}/selectors", func(w http.ResponseWriter, r *http.Request) {
			list, err := g.Selectors(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, list)
		})
	})

	r.Get("/api/hubs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, g.HubStatus())
	})
	r.Get("/api/breakers", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, g.Breakers())
	})
	r.Get("/api/ratelimit/{source}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, g.RateLimit(chi.URLParam(r, "source")))
	})
	r.Get("/api/traces/recent", func(w http.ResponseWriter, r *http.Request) {
		spans, err := g.RecentTraces(r.Context(), queryInt(r, "limit", DefaultListLimit))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, spans)
	})
	r.Get("/api/events", func(w http.ResponseWriter, r *http.Request) {
		events, err := g.RecentEvents(r.Context(), r.URL.Query().Get("hub"), queryInt(r, "limit", DefaultListLimit))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, events)
	})

	r.Post("/api/discover", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name    string `json:"name"`
			Company string `json:"company"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		if req.Name == "" {
			writeError(w, 400, errors.New("name is required"))
			return
		}
		res, err := g.Discover(r.Context(), req.Name, req.Company)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, res)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
