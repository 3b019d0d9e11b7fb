package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AuthorizeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "workspace_gateway", Name: "authorize_total", Help: "Gateway authorize calls by outcome."},
		[]string{"outcome"},
	)
	RefreshAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "workspace_gateway", Name: "token_refresh_total", Help: "Outbound token refresh exchanges by result."},
		[]string{"result"},
	)
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "workspace_gateway", Name: "sessions_active", Help: "Sessions currently held by the binder."},
	)
	PolicyReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "workspace_gateway", Name: "policy_reloads_total", Help: "Policy snapshot reloads by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(AuthorizeOutcomes)
	reg.MustRegister(RefreshAttempts)
	reg.MustRegister(SessionsActive)
	reg.MustRegister(PolicyReloads)
}
