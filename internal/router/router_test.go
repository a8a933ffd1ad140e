package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/ojportal/internal/apperr"
	"github.com/starford/ojportal/internal/credstore"
	"github.com/starford/ojportal/internal/session"
)

func newSession(t *testing.T, role, token string) *session.Session {
	t.Helper()
	sess := session.New(credstore.NewMemory())
	if token != "" {
		if err := sess.Begin(session.Credentials{Token: token, Username: "alice", Role: role}); err != nil {
			t.Fatalf("Begin: %v", err)
		}
	}
	return sess
}

func TestDefaultRoutesOrder(t *testing.T) {
	want := []string{
		"Home", "Problems", "ProblemDetail", "TestCaseManager", "Submissions", "Contests",
		"ContestDetail", "Admin", "Profile", "UserDetail", "Messages", "Friends",
	}
	routes := Default().Routes()
	if len(routes) != len(want) {
		t.Fatalf("len = %d, want %d", len(routes), len(want))
	}
	for i, name := range want {
		if routes[i].Name != name {
			t.Errorf("routes[%d] = %s, want %s", i, routes[i].Name, name)
		}
	}
}

func TestRoutesIsCopy(t *testing.T) {
	r := Default()
	routes := r.Routes()
	routes[7].Meta.RequiresAdmin = false

	m, err := r.Resolve("/admin")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Route.Meta.RequiresAdmin {
		t.Fatal("route table mutated through Routes()")
	}
}

func TestResolve(t *testing.T) {
	r := Default()
	tests := []struct {
		path   string
		name   string
		params map[string]string
	}{
		{"/", "Home", nil},
		{"/problems", "Problems", nil},
		{"/problems/", "Problems", nil},
		{"/problems/42", "ProblemDetail", map[string]string{"id": "42"}},
		{"/problems/42/test-cases", "TestCaseManager", map[string]string{"id": "42"}},
		{"/contests/7?tab=rank", "ContestDetail", map[string]string{"id": "7"}},
		{"/users/3#top", "UserDetail", map[string]string{"id": "3"}},
		{"/admin", "Admin", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			m, err := r.Resolve(tt.path)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if m.Route.Name != tt.name {
				t.Errorf("name = %s, want %s", m.Route.Name, tt.name)
			}
			for k, v := range tt.params {
				if m.Params[k] != v {
					t.Errorf("param %s = %q, want %q", k, m.Params[k], v)
				}
			}
		})
	}
}

func TestResolveUnknown(t *testing.T) {
	for _, p := range []string{"/nope", "/problems/1/2", "/admin/users"} {
		if _, err := Default().Resolve(p); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Resolve(%q) err = %v, want ErrNotFound", p, err)
		}
	}
}

func TestAdminGuard(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		token    string
		wantName string
		wantFrom string
	}{
		{"anonymous", "", "", "Home", "/admin"},
		{"regular user", "user", "tok", "Home", "/admin"},
		{"case mismatch", "Admin", "tok", "Home", "/admin"},
		{"admin", "admin", "tok", "Admin", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Default(WithGuards(AdminGuard(newSession(t, tt.role, tt.token))))
			nav, err := r.Navigate("/admin")
			if err != nil {
				t.Fatalf("Navigate: %v", err)
			}
			if nav.Route.Name != tt.wantName {
				t.Errorf("landed on %s, want %s", nav.Route.Name, tt.wantName)
			}
			if nav.RedirectedFrom != tt.wantFrom {
				t.Errorf("RedirectedFrom = %q, want %q", nav.RedirectedFrom, tt.wantFrom)
			}
		})
	}
}

func TestAdminGuardIgnoresOtherRoutes(t *testing.T) {
	r := Default(WithGuards(AdminGuard(newSession(t, "", ""))))
	nav, err := r.Navigate("/problems/1")
	if err != nil {
		t.Fatal(err)
	}
	if nav.Route.Name != "ProblemDetail" || nav.RedirectedFrom != "" {
		t.Fatalf("unexpected navigation %+v", nav)
	}
}

func TestRequiresAuthNotEnforcedByDefault(t *testing.T) {
	r := Default(WithGuards(AdminGuard(newSession(t, "", ""))))
	for _, p := range []string{"/profile", "/messages", "/friends", "/problems/1/test-cases"} {
		nav, err := r.Navigate(p)
		if err != nil {
			t.Fatalf("Navigate(%s): %v", p, err)
		}
		if nav.RedirectedFrom != "" {
			t.Errorf("Navigate(%s) redirected", p)
		}
	}
}

func TestAuthGuard(t *testing.T) {
	anon := newSession(t, "", "")
	r := Default()
	r.BeforeEach(AuthGuard(anon))

	nav, err := r.Navigate("/profile")
	if err != nil {
		t.Fatal(err)
	}
	if nav.Route.Name != "Home" || nav.RedirectedFrom != "/profile" {
		t.Fatalf("unexpected navigation %+v", nav)
	}

	authed := Default(WithGuards(AuthGuard(newSession(t, "user", "tok"))))
	nav, err = authed.Navigate("/profile")
	if err != nil {
		t.Fatal(err)
	}
	if nav.Route.Name != "Profile" {
		t.Fatalf("landed on %s", nav.Route.Name)
	}
}

func TestRedirectLoop(t *testing.T) {
	bounce := func(to Match) string {
		if to.Route.Name == "Home" {
			return "/admin"
		}
		return ""
	}
	r := Default(WithGuards(AdminGuard(newSession(t, "", "")), bounce))
	if _, err := r.Navigate("/admin"); !errors.Is(err, apperr.ErrRedirectLoop) {
		t.Fatalf("err = %v, want ErrRedirectLoop", err)
	}
}

func TestRedirectHook(t *testing.T) {
	var got []string
	r := Default(
		WithGuards(AdminGuard(newSession(t, "", ""))),
		WithRedirectHook(func(from Match, to string) { got = append(got, from.Route.Name+"->"+to) }),
	)
	if _, err := r.Navigate("/admin"); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "Admin->/" {
		t.Fatalf("hook calls = %v", got)
	}
}

func TestHandler(t *testing.T) {
	sess := newSession(t, "user", "tok")
	r := Default(WithGuards(AdminGuard(sess)))

	var seen Match
	h := r.Handler(map[string]View{
		"ProblemDetail": ViewFunc(func(w http.ResponseWriter, _ *http.Request, m Match) {
			seen = m
			w.WriteHeader(http.StatusOK)
		}),
	})

	t.Run("guard redirects", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
		if w.Code != http.StatusFound {
			t.Fatalf("status = %d, want 302", w.Code)
		}
		if loc := w.Header().Get("Location"); loc != "/" {
			t.Fatalf("Location = %q", loc)
		}
	})

	t.Run("view receives params", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/problems/1001", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if seen.Route.Name != "ProblemDetail" || seen.Params["id"] != "1001" {
			t.Fatalf("view saw %+v", seen)
		}
	})

	t.Run("default view", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/contests/5", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var m Match
		if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
			t.Fatal(err)
		}
		if m.Route.Name != "ContestDetail" || m.Params["id"] != "5" {
			t.Fatalf("body = %s", w.Body.String())
		}
	})

	t.Run("unknown path", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("admin passes", func(t *testing.T) {
		if err := sess.Begin(session.Credentials{Token: "tok", Username: "root", Role: "admin"}); err != nil {
			t.Fatal(err)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	})
}

func TestChiPattern(t *testing.T) {
	cases := map[string]string{
		"/":                        "/",
		"/problems":                "/problems",
		"/problems/:id/test-cases": "/problems/{id}/test-cases",
	}
	for in, want := range cases {
		if got := chiPattern(in); got != want {
			t.Errorf("chiPattern(%q) = %q, want %q", in, got, want)
		}
	}
}
