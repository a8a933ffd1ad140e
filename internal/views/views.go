// Package views renders the portal's HTML pages for resolved routes.
package views

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/starford/ojportal/internal/apiclient"
	"github.com/starford/ojportal/internal/apperr"
	"github.com/starford/ojportal/internal/router"
)

//go:embed templates/*.html
var templateFS embed.FS

// Backend fetches the judge resources pages display.
type Backend interface {
	Problem(ctx context.Context, id int64) (*apiclient.Problem, error)
	User(ctx context.Context, id int64) (*apiclient.User, error)
}

// Identity reports who is signed in.
type Identity interface {
	Username() string
	IsAdmin() bool
}

// AvatarURLs builds display URLs for stored avatar paths.
type AvatarURLs interface {
	URL(path string, userID int64) string
}

// MarkdownRenderer turns Markdown into sanitized HTML.
type MarkdownRenderer interface {
	Render(source string) string
}

// Pages renders every route in the table.
type Pages struct {
	backend  Backend
	identity Identity
	avatars  AvatarURLs
	markdown MarkdownRenderer
	routes   []router.Route
	logger   *slog.Logger

	page, home, problem, user, failure *template.Template
}

// New parses the page templates.
func New(backend Backend, identity Identity, avatars AvatarURLs, md MarkdownRenderer, routes []router.Route, logger *slog.Logger) *Pages {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pages{
		backend:  backend,
		identity: identity,
		avatars:  avatars,
		markdown: md,
		routes:   routes,
		logger:   logger,
		page:     parse("page.html"),
		home:     parse("home.html"),
		problem:  parse("problem.html"),
		user:     parse("user.html"),
		failure:  parse("error.html"),
	}
}

func parse(name string) *template.Template {
	return template.Must(template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name))
}

// Views maps every route view name to its renderer.
func (p *Pages) Views() map[string]router.View {
	views := make(map[string]router.View, len(p.routes))
	for _, rt := range p.routes {
		views[rt.View] = router.ViewFunc(p.generic)
	}
	views["Home"] = router.ViewFunc(p.Home)
	views["ProblemDetail"] = router.ViewFunc(p.ProblemDetail)
	views["UserDetail"] = router.ViewFunc(p.UserDetail)
	return views
}

type pageData struct {
	Title    string
	Route    string
	Username string
	IsAdmin  bool
	Params   map[string]string
	Data     any
}

func (p *Pages) data(m router.Match, title string, v any) pageData {
	return pageData{
		Title:    title,
		Route:    m.Route.Name,
		Username: p.identity.Username(),
		IsAdmin:  p.identity.IsAdmin(),
		Params:   m.Params,
		Data:     v,
	}
}

func (p *Pages) generic(w http.ResponseWriter, _ *http.Request, m router.Match) {
	p.write(w, http.StatusOK, p.page, p.data(m, m.Route.Name, nil))
}

// Home lists the routes.
func (p *Pages) Home(w http.ResponseWriter, _ *http.Request, m router.Match) {
	p.write(w, http.StatusOK, p.home, p.data(m, "Home", p.routes))
}

type problemView struct {
	Problem      *apiclient.Problem
	Description  template.HTML
	InputFormat  template.HTML
	OutputFormat template.HTML
}

// ProblemDetail fetches a problem and renders its statement.
func (p *Pages) ProblemDetail(w http.ResponseWriter, r *http.Request, m router.Match) {
	id, ok := p.id(w, m)
	if !ok {
		return
	}
	prob, err := p.backend.Problem(r.Context(), id)
	if err != nil {
		p.fail(w, m, err)
		return
	}
	p.write(w, http.StatusOK, p.problem, p.data(m, prob.Title, problemView{
		Problem: prob,
		// Renderer output is sanitized.
		Description:  template.HTML(p.markdown.Render(prob.Description)),
		InputFormat:  template.HTML(p.markdown.Render(prob.InputFormat)),
		OutputFormat: template.HTML(p.markdown.Render(prob.OutputFormat)),
	}))
}

type userView struct {
	User      *apiclient.User
	AvatarURL string
	Initial   string
}

// UserDetail fetches a user and shows the cache-busted avatar.
func (p *Pages) UserDetail(w http.ResponseWriter, r *http.Request, m router.Match) {
	id, ok := p.id(w, m)
	if !ok {
		return
	}
	u, err := p.backend.User(r.Context(), id)
	if err != nil {
		p.fail(w, m, err)
		return
	}
	initial, _ := utf8.DecodeRuneInString(u.Username)
	p.write(w, http.StatusOK, p.user, p.data(m, u.Username, userView{
		User:      u,
		AvatarURL: p.avatars.URL(u.Avatar, u.ID),
		Initial:   strings.ToUpper(string(initial)),
	}))
}

func (p *Pages) id(w http.ResponseWriter, m router.Match) (int64, bool) {
	id, err := strconv.ParseInt(m.Params["id"], 10, 64)
	if err != nil || id <= 0 {
		p.write(w, http.StatusBadRequest, p.failure, p.data(m, "Bad request", "invalid id"))
		return 0, false
	}
	return id, true
}

func (p *Pages) fail(w http.ResponseWriter, m router.Match, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		p.write(w, http.StatusNotFound, p.failure, p.data(m, "Not found", "The requested item does not exist."))
	case errors.Is(err, apperr.ErrUnauthorized):
		p.write(w, http.StatusUnauthorized, p.failure, p.data(m, "Signed out", "Your session has expired. Please sign in again."))
	case errors.Is(err, apperr.ErrForbidden):
		p.write(w, http.StatusForbidden, p.failure, p.data(m, "Forbidden", "You do not have access to this page."))
	default:
		p.logger.Error("backend request failed",
			slog.String("route", m.Route.Name),
			slog.String("error", err.Error()))
		p.write(w, http.StatusBadGateway, p.failure, p.data(m, "Unavailable", "The judge backend could not be reached."))
	}
}

func (p *Pages) write(w http.ResponseWriter, status int, t *template.Template, data pageData) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		p.logger.Error("template execute failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
