package apiclient

import (
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID carries a per-request id the backend can log.
const HeaderRequestID = "X-Request-ID"

// TokenSource returns the current bearer token, or "" when logged out.
type TokenSource interface {
	Token() string
}

// bearerTransport decorates every outgoing request with the session token.
// A missing token is not an error: the header is simply omitted.
type bearerTransport struct {
	base   http.RoundTripper
	tokens TokenSource
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request.
	r := req.Clone(req.Context())
	if tok := t.tokens.Token(); tok != "" {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	if r.Header.Get(HeaderRequestID) == "" {
		r.Header.Set(HeaderRequestID, uuid.NewString())
	}
	return t.base.RoundTrip(r)
}
