// Package router holds the portal's client-side route table and the guards
// that run before every navigation.
package router

// Meta carries the access flags a route declares.
type Meta struct {
	RequiresAuth  bool `json:"requiresAuth,omitempty"`
	RequiresAdmin bool `json:"requiresAdmin,omitempty"`
}

// Route maps a path pattern to a named view. Segments starting with ':'
// are parameters.
type Route struct {
	Path string `json:"path"`
	Name string `json:"name"`
	View string `json:"view"`
	Meta Meta   `json:"meta"`
}

// DefaultRoutes returns the portal's route table in match order.
func DefaultRoutes() []Route {
	return []Route{
		{Path: "/", Name: "Home", View: "Home"},
		{Path: "/problems", Name: "Problems", View: "Problems"},
		{Path: "/problems/:id", Name: "ProblemDetail", View: "ProblemDetail"},
		{Path: "/problems/:id/test-cases", Name: "TestCaseManager", View: "TestCaseManager", Meta: Meta{RequiresAuth: true}},
		{Path: "/submissions", Name: "Submissions", View: "Submissions"},
		{Path: "/contests", Name: "Contests", View: "Contests"},
		{Path: "/contests/:id", Name: "ContestDetail", View: "ContestDetail"},
		{Path: "/admin", Name: "Admin", View: "Admin", Meta: Meta{RequiresAdmin: true}},
		{Path: "/profile", Name: "Profile", View: "Profile", Meta: Meta{RequiresAuth: true}},
		{Path: "/users/:id", Name: "UserDetail", View: "UserDetail"},
		{Path: "/messages", Name: "Messages", View: "Messages", Meta: Meta{RequiresAuth: true}},
		{Path: "/friends", Name: "Friends", View: "Friends", Meta: Meta{RequiresAuth: true}},
	}
}
