package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-workspace-gateway/gateway"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable,omitempty"`
	Account    string `json:"account,omitempty"`
	Capability string `json:"capability,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// statusForDenial maps a denial kind to the HTTP status the outer server sees.
func statusForDenial(kind gateway.Kind) int {
	switch kind {
	case gateway.NotAuthenticated, gateway.ReauthRequired:
		return http.StatusUnauthorized
	case gateway.AccountDisabled, gateway.CapabilityForbidden:
		return http.StatusForbidden
	case gateway.RateLimited:
		return http.StatusTooManyRequests
	case gateway.TemporarilyUnavailable:
		return http.StatusServiceUnavailable
	case gateway.AlreadyBound:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeGatewayError renders a gateway or flow error. Causes of denials are
// logged, never returned to the caller.
func writeGatewayError(w http.ResponseWriter, err error) {
	var denial *gateway.Denial
	if apperrors.As(err, &denial) {
		writeJSON(w, statusForDenial(denial.Kind), errorResponse{
			Error:      string(denial.Kind),
			Message:    denialMessage(denial.Kind),
			Retryable:  denial.Retryable(),
			Account:    denial.Account,
			Capability: denial.Capability,
		})
		return
	}

	switch {
	case apperrors.Is(err, apperrors.ErrInvalidSession):
		writeError(w, http.StatusBadRequest, "invalid_session", "a session id is required")
	case apperrors.Is(err, apperrors.ErrSessionNotFound), apperrors.Is(err, apperrors.ErrSessionExpired):
		writeError(w, http.StatusNotFound, "session_not_found", "session not found or expired")
	case apperrors.Is(err, apperrors.ErrInvalidGrant):
		writeError(w, http.StatusBadRequest, "invalid_grant", "the authorization code was rejected")
	case apperrors.Is(err, apperrors.ErrInvalidNonce), apperrors.Is(err, apperrors.ErrMissingIdentity):
		writeError(w, http.StatusBadRequest, "invalid_identity", "the provider response carried no usable identity")
	case apperrors.Is(err, apperrors.ErrTemporarilyUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:     string(gateway.TemporarilyUnavailable),
			Message:   denialMessage(gateway.TemporarilyUnavailable),
			Retryable: true,
		})
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func denialMessage(kind gateway.Kind) string {
	switch kind {
	case gateway.NotAuthenticated:
		return "session is not authenticated; start the OAuth flow"
	case gateway.AccountDisabled:
		return "account is not enabled"
	case gateway.CapabilityForbidden:
		return "capability is not allowed for this account"
	case gateway.RateLimited:
		return "request rate limit exceeded; retry later"
	case gateway.ReauthRequired:
		return "account must consent again; start the OAuth flow"
	case gateway.TemporarilyUnavailable:
		return "upstream temporarily unavailable; retry later"
	case gateway.AlreadyBound:
		return "session is already bound to a different account"
	default:
		return "request denied"
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	Env           string `json:"env"`
	Sessions      int    `json:"sessions"`
	PolicyVersion uint64 `json:"policy_version"`
	PolicySource  string `json:"policy_source"`
	MultiAccount  bool   `json:"multi_account"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := s.policy.Snapshot()
		writeJSON(w, http.StatusOK, healthResponse{
			Status:        "ok",
			Env:           s.env,
			Sessions:      s.sessions.Count(),
			PolicyVersion: snapshot.Version(),
			PolicySource:  snapshot.Source(),
			MultiAccount:  s.config.GetMultiAccountEnabled(),
		})
	}
}
