package router

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/starford/ojportal/internal/apperr"
)

// MaxRedirects bounds the guard redirects followed by one navigation.
const MaxRedirects = 8

// Match is a route resolved against a concrete path.
type Match struct {
	Route  Route             `json:"route"`
	Params map[string]string `json:"params,omitempty"`
	Path   string            `json:"path"`
}

// Navigation is the outcome of Navigate.
type Navigation struct {
	Match
	RedirectedFrom string `json:"redirectedFrom,omitempty"`
}

// Guard inspects the navigation target and returns a redirect location,
// or "" to let the navigation proceed.
type Guard func(to Match) (redirect string)

// Option configures a Router.
type Option func(*Router)

// WithGuards installs guards in order.
func WithGuards(guards ...Guard) Option {
	return func(r *Router) { r.guards = append(r.guards, guards...) }
}

// WithRedirectHook registers fn to be called whenever a guard redirects.
func WithRedirectHook(fn func(from Match, to string)) Option {
	return func(r *Router) { r.onRedirect = fn }
}

type compiled struct {
	route    Route
	segments []string
}

// Router resolves paths against a fixed route table.
type Router struct {
	table      []compiled
	onRedirect func(from Match, to string)

	mu     sync.RWMutex
	guards []Guard
}

// New creates a Router over routes. The table is copied.
func New(routes []Route, opts ...Option) *Router {
	r := &Router{table: make([]compiled, 0, len(routes))}
	for _, rt := range routes {
		r.table = append(r.table, compiled{route: rt, segments: split(rt.Path)})
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Default creates a Router over DefaultRoutes.
func Default(opts ...Option) *Router {
	return New(DefaultRoutes(), opts...)
}

// Routes returns a copy of the route table.
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.table))
	for i, c := range r.table {
		out[i] = c.route
	}
	return out
}

// BeforeEach appends a guard run before every navigation.
func (r *Router) BeforeEach(g Guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards = append(r.guards, g)
}

func (r *Router) snapshotGuards() []Guard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Guard(nil), r.guards...)
}

// Resolve matches path against the table. Query strings, fragments and a
// trailing slash are ignored.
func (r *Router) Resolve(path string) (Match, error) {
	clean := normalize(path)
	segs := split(clean)
	for _, c := range r.table {
		if params, ok := matchSegments(c.segments, segs); ok {
			return Match{Route: c.route, Params: params, Path: clean}, nil
		}
	}
	return Match{}, fmt.Errorf("router: resolve %q: %w", path, apperr.ErrNotFound)
}

// Navigate resolves to, runs the guards and follows their redirects.
func (r *Router) Navigate(to string) (Navigation, error) {
	guards := r.snapshotGuards()
	var from string
	cur := to

	for hops := 0; ; hops++ {
		m, err := r.Resolve(cur)
		if err != nil {
			return Navigation{}, err
		}
		redirect := runGuards(guards, m)
		if redirect == "" {
			return Navigation{Match: m, RedirectedFrom: from}, nil
		}
		if r.onRedirect != nil {
			r.onRedirect(m, redirect)
		}
		if hops >= MaxRedirects {
			return Navigation{}, fmt.Errorf("router: navigate %q: %w", to, apperr.ErrRedirectLoop)
		}
		if from == "" {
			from = m.Path
		}
		cur = redirect
	}
}

func runGuards(guards []Guard, m Match) string {
	for _, g := range guards {
		if redirect := g(m); redirect != "" {
			return redirect
		}
	}
	return ""
}

func normalize(path string) string {
	if u, err := url.Parse(path); err == nil {
		path = u.Path
	} else if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchSegments(pattern, segs []string) (map[string]string, bool) {
	if len(pattern) != len(segs) {
		return nil, false
	}
	var params map[string]string
	for i, p := range pattern {
		if name, ok := strings.CutPrefix(p, ":"); ok {
			if segs[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[name] = segs[i]
			continue
		}
		if p != segs[i] {
			return nil, false
		}
	}
	return params, true
}
