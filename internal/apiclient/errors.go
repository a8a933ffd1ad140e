package apiclient

import (
	"fmt"
	"net/http"

	"github.com/starford/ojportal/internal/apperr"
)

// StatusError is returned for every non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apiclient: %s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
}

// Is maps well-known statuses to the application sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case apperr.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case apperr.ErrForbidden:
		return e.Status == http.StatusForbidden
	case apperr.ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}
