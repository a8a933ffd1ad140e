package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity fields the backend embeds in its access token.
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether the token expiry lies before now. Tokens without
// an expiry never expire.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// ParseClaims decodes token without verifying its signature. The portal
// never holds the signing key; the result is for display only.
func ParseClaims(token string) (*Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("session: parse claims: %w", err)
	}
	out := &Claims{}
	if sub, err := mc.GetSubject(); err == nil {
		out.Subject = sub
	}
	if role, ok := mc["role"].(string); ok {
		out.Role = role
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// Identity summarizes the stored credentials for display.
type Identity struct {
	Authenticated bool       `json:"authenticated"`
	Username      string     `json:"username,omitempty"`
	Role          string     `json:"role,omitempty"`
	IsAdmin       bool       `json:"is_admin"`
	Subject       string     `json:"subject,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Expired       bool       `json:"expired,omitempty"`
}

// Identity describes the session as of now. Claims are included only when
// the token is a decodable JWT.
func (s *Session) Identity(now time.Time) Identity {
	c := s.Current()
	id := Identity{
		Authenticated: c.Token != "",
		Username:      c.Username,
		Role:          c.Role,
		IsAdmin:       c.Role == RoleAdmin,
	}
	if c.Token == "" {
		return id
	}
	claims, err := ParseClaims(c.Token)
	if err != nil {
		return id
	}
	id.Subject = claims.Subject
	if !claims.ExpiresAt.IsZero() {
		exp := claims.ExpiresAt
		id.ExpiresAt = &exp
		id.Expired = claims.Expired(now)
	}
	return id
}
