package router

import "github.com/starford/ojportal/internal/session"

// RoleSource reports the stored role flag.
type RoleSource interface {
	Role() string
}

// TokenSource reports the stored token.
type TokenSource interface {
	Token() string
}

// AdminGuard redirects to "/" when the target requires admin and the role
// flag is not exactly "admin".
func AdminGuard(roles RoleSource) Guard {
	return func(to Match) string {
		if to.Route.Meta.RequiresAdmin && roles.Role() != session.RoleAdmin {
			return "/"
		}
		return ""
	}
}

// AuthGuard redirects to "/" when the target requires authentication and
// no token is stored. It is not installed by default.
func AuthGuard(tokens TokenSource) Guard {
	return func(to Match) string {
		if to.Route.Meta.RequiresAuth && tokens.Token() == "" {
			return "/"
		}
		return ""
	}
}
