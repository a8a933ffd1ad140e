package internal

import (
	"net/http"

	"github.com/jonboulle/clockwork"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config         *Config
	clock          clockwork.Clock
	transport      http.RoundTripper
	runtimeMetrics bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithClock replaces the clock driving the logout delay and avatar
// timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(a *application) {
		a.clock = c
	}
}

// WithTransport replaces the HTTP transport used to reach the backend.
func WithTransport(rt http.RoundTripper) Option {
	return func(a *application) {
		a.transport = rt
	}
}

// WithRuntimeMetrics adds the Go runtime and process collectors to /metrics.
func WithRuntimeMetrics() Option {
	return func(a *application) {
		a.runtimeMetrics = true
	}
}
