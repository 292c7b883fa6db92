package nomadlabs

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "nomadlabs"

// metrics holds the domain counters. Each App owns a registry so several
// apps (as in tests) can coexist in one process.
type metrics struct {
	registry         *prometheus.Registry
	commentsPosted   prometheus.Counter
	reactionsToggled *prometheus.CounterVec
	postsSaved       *prometheus.CounterVec
	renderLookups    *prometheus.CounterVec
	logins           *prometheus.CounterVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &metrics{
		registry: reg,
		commentsPosted: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "comments_posted_total",
			Help:      "Comments and replies created.",
		}),
		reactionsToggled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reactions_toggled_total",
			Help:      "Reaction toggles by reaction type.",
		}, []string{"type"}),
		postsSaved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "posts_saved_total",
			Help:      "Post creates and updates by resulting status.",
		}, []string{"status"}),
		renderLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "render_cache_lookups_total",
			Help:      "Rendered markdown cache lookups by result.",
		}, []string{"result"}),
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *metrics) renderLookup(result string) {
	if m != nil {
		m.renderLookups.WithLabelValues(result).Inc()
	}
}

// middleware records request counts and latencies per route.
func (m *metrics) middleware() echo.MiddlewareFunc {
	return echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  metricsNamespace,
		Registerer: m.registry,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	})
}

// handler exposes the registry in the Prometheus text format.
func (m *metrics) handler() echo.HandlerFunc {
	return echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: m.registry})
}
