package router

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// View renders a resolved route.
type View interface {
	ServeRoute(w http.ResponseWriter, r *http.Request, m Match)
}

// ViewFunc adapts a function to View.
type ViewFunc func(w http.ResponseWriter, r *http.Request, m Match)

func (f ViewFunc) ServeRoute(w http.ResponseWriter, r *http.Request, m Match) { f(w, r, m) }

// Handler mounts the route table on a chi router. Guards run as
// middleware and answer a redirect with 302. Routes without an entry in
// views respond with the resolved match as JSON.
func (r *Router) Handler(views map[string]View) chi.Router {
	mux := chi.NewRouter()
	mux.Use(middleware.StripSlashes)
	mux.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})

	for _, c := range r.table {
		c := c
		view, ok := views[c.route.View]
		if !ok {
			view = ViewFunc(matchJSON)
		}
		mux.With(r.guardMiddleware(c)).Get(chiPattern(c.route.Path), func(w http.ResponseWriter, req *http.Request) {
			view.ServeRoute(w, req, matchFromRequest(c, req))
		})
	}
	return mux
}

func (r *Router) guardMiddleware(c compiled) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := matchFromRequest(c, req)
			if redirect := runGuards(r.snapshotGuards(), m); redirect != "" {
				if r.onRedirect != nil {
					r.onRedirect(m, redirect)
				}
				http.Redirect(w, req, redirect, http.StatusFound)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func matchFromRequest(c compiled, req *http.Request) Match {
	var params map[string]string
	for _, seg := range c.segments {
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			if params == nil {
				params = make(map[string]string)
			}
			params[name] = chi.URLParam(req, name)
		}
	}
	return Match{Route: c.route, Params: params, Path: normalize(req.URL.Path)}
}

// chiPattern converts ":id" segments to chi's "{id}".
func chiPattern(path string) string {
	segs := split(path)
	if len(segs) == 0 {
		return "/"
	}
	for i, s := range segs {
		if name, ok := strings.CutPrefix(s, ":"); ok {
			segs[i] = "{" + name + "}"
		}
	}
	return "/" + strings.Join(segs, "/")
}

func matchJSON(w http.ResponseWriter, _ *http.Request, m Match) {
	writeJSON(w, http.StatusOK, m)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}
