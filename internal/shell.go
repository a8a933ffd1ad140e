package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/ojportal/internal/sse"
	"github.com/starford/ojportal/internal/views"
)

const maxRenderBody = 1 << 20

type renderRequest struct {
	Source string `json:"source"`
}

type renderResponse struct {
	HTML string `json:"html"`
}

// NewHandler builds the portal HTTP surface: health checks, metrics, the
// SSE stream, the render endpoint and the guarded route table.
func NewHandler(p *Portal, broker *sse.Broker) http.Handler {
	pages := views.New(p.Client, p.Session, p.Avatars, p.Markdown, p.Router.Routes(),
		p.Logger.With(slog.String("component", "views")))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"authenticated": p.Session.Authenticated(),
			"logging_out":   p.Expirer.InProgress(),
		})
	})

	r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	r.Get("/events", broker.ServeHTTP)

	r.Post("/render", func(w http.ResponseWriter, req *http.Request) {
		var body renderRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRenderBody)).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		writeJSON(w, http.StatusOK, renderResponse{HTML: p.Markdown.Render(body.Source)})
	})

	r.Mount("/", p.Router.Handler(pages.Views()))
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}
