package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Resultados usados como etiqueta en los contadores.
const (
	ResultSuccess       = "success"
	ResultFailure       = "failure"
	ResultInactive      = "inactive"
	ResultRateLimited   = "rate_limited"
	ResultInvalid       = "invalid"
	ResultExpired       = "expired"
	ResultValidation    = "validation_error"
	ResultInternalError = "error"
)

// Metrics agrupa los contadores de autenticación. Un *Metrics nil no registra nada.
type Metrics struct {
	logins        *prometheus.CounterVec
	registrations *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "config_codex_auth_logins_total",
			Help: "Total number of login attempts by result",
		}, []string{"result"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "config_codex_auth_registrations_total",
			Help: "Total number of registration attempts by result",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "config_codex_auth_token_refresh_total",
			Help: "Total number of access token refreshes by result",
		}, []string{"result"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.logins, m.registrations, m.refreshes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRegistration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}
