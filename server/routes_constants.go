package server

import "github.com/jrsteele09/go-workspace-gateway/internal/config"

const (
	StartRoute     = "/oauth2/start"
	CallbackRoute  = config.CallbackPath
	AuthorizeRoute = "/v1/authorize"
	SessionsRoute  = "/v1/sessions"
	SessionRoute   = "/v1/sessions/{id}"
	UnbindRoute    = "/v1/sessions/{id}/unbind"
	HealthRoute    = "/healthz"
	MetricsRoute   = "/metrics"
)
