// Package credstore holds the client credential state: the bearer token and
// the identity fields derived from it.
package credstore

// Keys persisted by the login flow and read on every request and navigation.
const (
	KeyToken    = "token"
	KeyUsername = "username"
	KeyRole     = "userRole"
)

// Reader is the read side of a credential store.
type Reader interface {
	// Get returns the value stored under key, or "" when absent.
	Get(key string) string
}

// Store is a key/value credential store.
type Store interface {
	Reader
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Remove deletes the given keys. Missing keys are not an error.
	Remove(keys ...string) error
}
