// Package metrics exposes Prometheus counters for the portal.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ojportal"

// Recorder owns a private registry so tests and multiple instances never
// collide on the global one.
type Recorder struct {
	registry *prometheus.Registry

	forcedLogouts       prometheus.Counter
	apiResponses        *prometheus.CounterVec
	guardRedirects      *prometheus.CounterVec
	avatarInvalidations prometheus.Counter
	renderFallbacks     *prometheus.CounterVec
}

// New creates a Recorder. withRuntime adds the Go and process collectors.
func New(withRuntime bool) *Recorder {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		forcedLogouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "forced_logouts_total",
			Help:      "Forced logout sequences started after a 401 response.",
		}),
		apiResponses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "responses_total",
			Help:      "Backend API responses by method and status class.",
		}, []string{"method", "class"}),
		guardRedirects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "guard_redirects_total",
			Help:      "Navigations redirected by a route guard.",
		}, []string{"route"}),
		avatarInvalidations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "avatar",
			Name:      "invalidations_total",
			Help:      "Avatar cache-busting timestamps recorded.",
		}),
		renderFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "markdown",
			Name:      "render_fallbacks_total",
			Help:      "Renders that degraded to sanitized raw text, by stage.",
		}, []string{"stage"}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ForcedLogout counts one forced logout sequence.
func (r *Recorder) ForcedLogout() { r.forcedLogouts.Inc() }

// APIResponse counts a backend response. A status of 0 means the request
// failed before a response arrived.
func (r *Recorder) APIResponse(method string, status int) {
	r.apiResponses.WithLabelValues(method, StatusClass(status)).Inc()
}

// GuardRedirect counts a guard redirect away from route.
func (r *Recorder) GuardRedirect(route string) {
	r.guardRedirects.WithLabelValues(route).Inc()
}

// AvatarInvalidated counts n avatar invalidations.
func (r *Recorder) AvatarInvalidated(n int) {
	if n > 0 {
		r.avatarInvalidations.Add(float64(n))
	}
}

// RenderFallback counts a degraded render at stage.
func (r *Recorder) RenderFallback(stage string) {
	r.renderFallbacks.WithLabelValues(stage).Inc()
}

// StatusClass returns the class label of status, such as "4xx". Anything
// outside 100-599 is "error".
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
