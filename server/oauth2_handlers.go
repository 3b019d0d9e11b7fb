package server

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-workspace-gateway/server/authflowrepo"
	"github.com/jrsteele09/go-workspace-gateway/upstream"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// StartAuthHandler opens (or reuses) the session named by ?session= and
// redirects the browser to the provider's consent page.
func (s *Server) StartAuthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		if sessionID == "" {
			writeError(w, http.StatusBadRequest, "invalid_session", "the session query parameter is required")
			return
		}
		session := s.sessions.Open(sessionID)

		flowID := uuid.NewString()
		flow := &authflowrepo.AuthFlowState{
			SessionID:    session.ID,
			CodeVerifier: oauth2.GenerateVerifier(),
			Nonce:        generateRandomString(32),
			CreatedAt:    NowTimeFunc(),
		}
		if err := s.flows.Upsert(flowID, flow); err != nil {
			log.Error().Err(err).Msg("failed to store authorization flow")
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}

		state, err := s.states.Sign(session.ID, flowID)
		if err != nil {
			_ = s.flows.Delete(flowID)
			log.Error().Err(err).Msg("failed to sign state")
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}

		log.Info().Str("session", session.ID).Str("flow", flowID).Msg("authorization flow started")
		http.Redirect(w, r, s.endpoint.AuthCodeURL(state, flow.Nonce, flow.CodeVerifier), http.StatusFound)
	}
}

type callbackResponse struct {
	SessionID string   `json:"session_id"`
	Account   string   `json:"account"`
	Scopes    []string `json:"scopes"`
	Status    string   `json:"status"`
}

// OAuthCallbackHandler completes the flow started by StartAuthHandler and binds
// the session to the account that consented.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// FormValue covers both query params and form_post
		state := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")
		errorDesc := r.FormValue("error_description")

		if errorParam != "" {
			writeError(w, http.StatusBadRequest, errorParam, fmt.Sprintf("authorization failed: %s", errorDesc))
			return
		}
		if code == "" || state == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "missing code or state parameter")
			return
		}

		sessionID, flowID, err := s.states.Verify(state)
		if err != nil {
			log.Warn().Err(err).Msg("SECURITY_AUDIT: OAuth callback with an invalid state")
			writeError(w, http.StatusBadRequest, "invalid_state", "invalid state parameter")
			return
		}

		flow, err := s.flows.Take(flowID)
		if err != nil || flow.SessionID != sessionID {
			log.Warn().Str("session", sessionID).Str("flow", flowID).Msg("SECURITY_AUDIT: OAuth callback for an unknown or replayed flow")
			writeError(w, http.StatusBadRequest, "invalid_state", "invalid state parameter")
			return
		}

		account, err := s.gateway.BindSessionFromOAuthCallback(r.Context(), sessionID, code,
			upstream.WithCodeVerifier(flow.CodeVerifier),
			upstream.WithNonce(flow.Nonce),
		)
		if err != nil {
			writeGatewayError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, callbackResponse{
			SessionID: sessionID,
			Account:   account.Email,
			Scopes:    account.Scopes,
			Status:    "bound",
		})
	}
}
