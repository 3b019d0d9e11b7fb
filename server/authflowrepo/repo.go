package authflowrepo

import "time"

// AuthFlowState is the server-side half of an in-flight authorization request.
// It is keyed by the flow id carried inside the signed state parameter.
type AuthFlowState struct {
	SessionID    string    // Session that started the flow
	CodeVerifier string    // PKCE verifier sent with the code exchange
	Nonce        string    // Expected id_token nonce
	CreatedAt    time.Time // When the flow started
}

type Repo interface {
	Upsert(flowID string, authState *AuthFlowState) error
	Get(flowID string) (*AuthFlowState, error)
	// Take returns the flow and removes it, so a flow can complete at most once.
	Take(flowID string) (*AuthFlowState, error)
	Delete(flowID string) error
	// DeleteExpired drops flows created before cutoff and returns how many were removed.
	DeleteExpired(cutoff time.Time) int
}
