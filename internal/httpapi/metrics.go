package httpapi

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jakechorley/incident-desk/pkg/core/model"
)

type metrics struct {
	registry    *prometheus.Registry
	logins      *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incident_desk_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incident_desk_transitions_total",
			Help: "Report lifecycle events by event and outcome.",
		}, []string{"event", "outcome"}),
	}
	m.registry.MustRegister(m.logins, m.transitions)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeLogin(err error) {
	m.logins.WithLabelValues(outcome(err)).Inc()
}

func (m *metrics) observeTransition(event model.Event, err error) {
	m.transitions.WithLabelValues(string(event), outcome(err)).Inc()
}

// outcome labels an error with its response code, or "ok"
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, errBadRequest) {
		return "invalid_request"
	}
	_, code := statusFor(err)
	return code
}
