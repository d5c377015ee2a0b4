// Package metrics holds the prometheus collectors of the session pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storefront"

// Refresh outcomes.
const (
	RefreshSuccess      = "success"
	RefreshUnauthorized = "unauthorized"
	RefreshError        = "error"
)

// Navigation reasons.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonSessionExpired  = "session_expired"
	ReasonForbiddenRole   = "forbidden_role"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	UpstreamResponses *prometheus.CounterVec
	RefreshTotal      *prometheus.CounterVec
	RetriesTotal      prometheus.Counter
	NavigationsTotal  *prometheus.CounterVec
	TeardownsTotal    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		UpstreamResponses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_responses_total",
				Help:      "Backend responses seen by the request authorizer",
			},
			[]string{"class"}, // 2xx, 3xx, 4xx, 5xx, error
		),
		RefreshTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refresh_total",
				Help:      "Token refresh attempts triggered by 401 responses",
			},
			[]string{"result"},
		),
		RetriesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_retries_total",
				Help:      "Requests resent after a successful token refresh",
			},
		),
		NavigationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "navigations_total",
				Help:      "Forced navigations to the login or unauthorized pages",
			},
			[]string{"reason"},
		),
		TeardownsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_teardowns_total",
				Help:      "Sessions destroyed after an unrecoverable refresh failure",
			},
		),
	}
}

func (m *Metrics) ObserveUpstream(status int, err error) {
	if m == nil {
		return
	}
	class := "error"
	if err == nil {
		switch {
		case status >= 500:
			class = "5xx"
		case status >= 400:
			class = "4xx"
		case status >= 300:
			class = "3xx"
		default:
			class = "2xx"
		}
	}
	m.UpstreamResponses.WithLabelValues(class).Inc()
}

func (m *Metrics) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) ObserveNavigation(reason string) {
	if m == nil {
		return
	}
	m.NavigationsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveTeardown() {
	if m == nil {
		return
	}
	m.TeardownsTotal.Inc()
}
