// Package session owns the client credential state and the forced-logout
// sequence triggered by authentication failures.
package session

import (
	"fmt"

	"github.com/starford/ojportal/internal/credstore"
)

// RoleAdmin is the only role value that unlocks admin-only routes.
const RoleAdmin = "admin"

// Credentials are written at login.
type Credentials struct {
	Token    string `json:"access_token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Session is a typed view over a credential store.
type Session struct {
	store credstore.Store
}

// New wraps store.
func New(store credstore.Store) *Session {
	return &Session{store: store}
}

// Store returns the underlying credential store.
func (s *Session) Store() credstore.Store { return s.store }

func (s *Session) Token() string    { return s.store.Get(credstore.KeyToken) }
func (s *Session) Username() string { return s.store.Get(credstore.KeyUsername) }
func (s *Session) Role() string     { return s.store.Get(credstore.KeyRole) }

// IsAdmin reports whether the role flag is exactly "admin".
func (s *Session) IsAdmin() bool { return s.Role() == RoleAdmin }

// Authenticated reports whether a token is present. The token is not
// validated; the backend answers 401 when it is stale.
func (s *Session) Authenticated() bool { return s.Token() != "" }

// Current returns a snapshot of the stored credentials.
func (s *Session) Current() Credentials {
	return Credentials{Token: s.Token(), Username: s.Username(), Role: s.Role()}
}

// Begin stores the credentials returned by a successful login.
func (s *Session) Begin(c Credentials) error {
	if c.Token == "" {
		return fmt.Errorf("session: begin: empty token")
	}
	for _, kv := range [][2]string{
		{credstore.KeyToken, c.Token},
		{credstore.KeyUsername, c.Username},
		{credstore.KeyRole, c.Role},
	} {
		if err := s.store.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("session: begin: %w", err)
		}
	}
	return nil
}

// Clear removes the token and every identity field derived from it.
func (s *Session) Clear() error {
	if err := s.store.Remove(credstore.KeyToken, credstore.KeyUsername, credstore.KeyRole); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}
