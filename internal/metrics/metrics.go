package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess        = "success"
	OutcomeInvalid        = "invalid"
	OutcomeReplay         = "replay"
	OutcomeInfrastructure = "infrastructure"
)

// Auth holds counters for authentication outcomes on a private registry.
type Auth struct {
	registry      *prometheus.Registry
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	replays       prometheus.Counter
	registrations prometheus.Counter
	requests      *prometheus.CounterVec
}

// NewAuth creates and registers the counters.
func NewAuth() *Auth {
	m := &Auth{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_auth_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_auth_refresh_total",
			Help: "Refresh token rotations by outcome.",
		}, []string{"outcome"}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "learnhub_auth_replay_detected_total",
			Help: "Refresh token replays that revoked a whole chain.",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "learnhub_auth_registrations_total",
			Help: "Accounts created.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_auth_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
	}

	m.registry.MustRegister(m.logins, m.refreshes, m.replays, m.registrations, m.requests)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Auth) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Auth) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Auth) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
	if outcome == OutcomeReplay {
		m.replays.Inc()
	}
}

func (m *Auth) Registered() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}

func (m *Auth) Request(method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
