package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/jrsteele09/go-workspace-gateway/sessions"
)

const maxRequestBody = 1 << 20

type authorizeRequest struct {
	SessionID  string          `json:"session_id"`
	Capability string          `json:"capability"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type authorizeResponse struct {
	SessionID   string          `json:"session_id"`
	Account     string          `json:"account"`
	Capability  string          `json:"capability"`
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// AuthorizeHandler runs the gateway decision for one inbound request. The
// access token is only ever written to the response body.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authorizeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "request body must be a JSON object")
			return
		}
		if req.Capability == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "capability is required")
			return
		}

		authorized, err := s.gateway.Authorize(r.Context(), req.SessionID, req.Capability, req.Payload)
		if err != nil {
			writeGatewayError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, authorizeResponse{
			SessionID:   authorized.SessionID,
			Account:     authorized.Account,
			Capability:  authorized.Capability,
			AccessToken: authorized.AccessToken.Value(),
			TokenType:   "Bearer",
			Payload:     req.Payload,
		})
	}
}

type openSessionRequest struct {
	SessionID string `json:"session_id"`
}

// OpenSessionHandler opens a session, generating an id when none is given.
func (s *Server) OpenSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req openSessionRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "request body must be a JSON object")
				return
			}
		}

		session := s.sessions.Open(req.SessionID)
		info, ok := s.sessions.Info(session.ID)
		if !ok {
			writeGatewayError(w, apperrors.ErrSessionNotFound)
			return
		}
		writeJSON(w, http.StatusCreated, info)
	}
}

func (s *Server) SessionInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := s.sessions.Info(chi.URLParam(r, "id"))
		if !ok {
			writeGatewayError(w, apperrors.ErrSessionNotFound)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func (s *Server) UnbindHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := s.sessions.Unbind(id); err != nil {
			writeGatewayError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"session_id": id,
			"state":      sessions.Unbound.String(),
		})
	}
}
