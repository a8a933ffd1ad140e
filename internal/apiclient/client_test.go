package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/starford/ojportal/internal/apperr"
	"github.com/starford/ojportal/internal/credstore"
	"github.com/starford/ojportal/internal/session"
)

type countingNav struct {
	mu sync.Mutex
	n  int
}

func (c *countingNav) Reload(string) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingNav) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type testEnv struct {
	srv     *httptest.Server
	sess    *session.Session
	expirer *session.Expirer
	nav     *countingNav
	clock   interface{ Advance(time.Duration) }
	client  *Client
}

func newTestEnv(t *testing.T, h http.HandlerFunc) *testEnv {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	clk := clockwork.NewFakeClock()
	sess := session.New(credstore.NewMemory())
	nav := &countingNav{}
	exp := session.NewExpirer(sess, nav, session.WithClock(clk))
	return &testEnv{
		srv:     srv,
		sess:    sess,
		expirer: exp,
		nav:     nav,
		clock:   clk,
		client:  New(srv.URL, DefaultRoot, sess, WithExpirer(exp)),
	}
}

func TestBearerHeaderAttachedWhenTokenPresent(t *testing.T) {
	var got, reqID string
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		reqID = r.Header.Get(HeaderRequestID)
		w.WriteHeader(http.StatusNoContent)
	})
	_ = env.sess.Begin(session.Credentials{Token: "tok-1", Username: "alice", Role: "user"})

	if err := env.client.Get(context.Background(), "/problems", nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer tok-1")
	}
	if reqID == "" {
		t.Error("missing request id header")
	}
}

func TestNoHeaderWithoutToken(t *testing.T) {
	var seen bool
	var got string
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		seen = true
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[]`))
	})
	var out []any
	if err := env.client.Get(context.Background(), "problems", &out); err != nil {
		t.Fatalf("Get without token should succeed: %v", err)
	}
	if !seen || got != "" {
		t.Errorf("Authorization = %q, want none", got)
	}
}

func TestRequestsGoUnderAPIRoot(t *testing.T) {
	var path string
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})
	_ = env.client.Get(context.Background(), "/contests/3", nil)
	if path != "/api/contests/3" {
		t.Errorf("path = %q, want /api/contests/3", path)
	}
	if env.client.BaseURL() != env.srv.URL+"/api" {
		t.Errorf("BaseURL = %q", env.client.BaseURL())
	}
	if env.client.Timeout() != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", env.client.Timeout(), DefaultTimeout)
	}
}

func TestUnauthorizedTriggersSingleLogout(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"expired"}`))
	})
	_ = env.sess.Begin(session.Credentials{Token: "stale", Username: "alice", Role: "admin"})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.client.Get(context.Background(), "/users/me", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("request %d: err = %v, want ErrUnauthorized", i, err)
		}
		var se *StatusError
		if !errors.As(err, &se) || string(se.Body) != `{"detail":"expired"}` {
			t.Errorf("request %d: body not preserved: %v", i, err)
		}
	}
	if env.sess.Authenticated() || env.sess.Role() != "" {
		t.Errorf("credentials not cleared: %+v", env.sess.Current())
	}
	if !env.expirer.InProgress() {
		t.Fatal("logout should be pending")
	}

	env.clock.Advance(session.DefaultLogoutDelay)
	deadline := time.Now().Add(time.Second)
	for env.nav.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if n := env.nav.count(); n != 1 {
		t.Errorf("reloads = %d, want 1", n)
	}
}

func TestOtherErrorsPropagateWithoutLogout(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})
	_ = env.sess.Begin(session.Credentials{Token: "tok"})

	err := env.client.Get(context.Background(), "/admin", nil)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if env.expirer.InProgress() || !env.sess.Authenticated() {
		t.Error("403 must not log out")
	}
}

func TestTransportErrorPropagates(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})
	env.srv.Close()
	if err := env.client.Get(context.Background(), "/problems", nil); err == nil {
		t.Fatal("expected transport error")
	}
	if env.expirer.InProgress() {
		t.Error("transport error must not log out")
	}
}

func TestLoginStoresCredentials(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/users/login" {
			http.NotFound(w, r)
			return
		}
		var req loginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "alice" || req.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(loginResponse{
			AccessToken: "jwt", TokenType: "bearer", UserID: 7, Username: "alice", Role: "admin",
		})
	})

	creds, err := env.client.Login(context.Background(), env.sess, "alice", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if creds.Token != "jwt" || env.sess.Token() != "jwt" || !env.sess.IsAdmin() {
		t.Errorf("creds = %+v, session = %+v", creds, env.sess.Current())
	}
}

func TestProblemDecodes(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/problems/12" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"problem_id":12,"title":"A+B","description":"Sum $$a+b$$","time_limit":1000}`))
	})
	p, err := env.client.Problem(context.Background(), 12)
	if err != nil {
		t.Fatalf("Problem: %v", err)
	}
	if p.ID != 12 || p.Title != "A+B" || p.TimeLimitMS != 1000 {
		t.Errorf("problem = %+v", p)
	}

	if _, err := env.client.Problem(context.Background(), 13); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing problem err = %v, want ErrNotFound", err)
	}
}

func TestObserverSeesStatus(t *testing.T) {
	var statuses []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()
	c := New(srv.URL, "", session.New(credstore.NewMemory()), WithObserver(func(_ string, s int) {
		statuses = append(statuses, s)
	}))
	_ = c.Get(context.Background(), "/x", nil)
	if len(statuses) != 1 || statuses[0] != http.StatusTeapot {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestUploadAvatarSendsMultipart(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/users/avatar" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		if hdr.Filename != "me.png" || hdr.Header.Get("Content-Type") != "image/png" {
			t.Errorf("part = %q %q", hdr.Filename, hdr.Header.Get("Content-Type"))
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"avatar_url": "/uploads/avatars/user_3.png"})
	})

	up, err := env.client.UploadAvatar(context.Background(), "me.png", "image/png", []byte("\x89PNG\r\n\x1a\n"))
	if err != nil {
		t.Fatalf("UploadAvatar: %v", err)
	}
	if up.AvatarURL != "/uploads/avatars/user_3.png" {
		t.Errorf("AvatarURL = %q", up.AvatarURL)
	}
}

func TestObserverSeesTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	var statuses []int
	c := New(srv.URL, "", session.New(credstore.NewMemory()), WithObserver(func(_ string, s int) {
		statuses = append(statuses, s)
	}))
	_ = c.Get(context.Background(), "/x", nil)
	if len(statuses) != 1 || statuses[0] != 0 {
		t.Errorf("statuses = %v", statuses)
	}
}
