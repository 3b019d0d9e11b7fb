package upstream

import (
	"context"

	"golang.org/x/oauth2"
)

// Grant is the outcome of a successful authorization code exchange.
type Grant struct {
	Email  string        // Verified email of the consenting account
	Scopes []string      // Scopes the provider reports as granted
	Token  *oauth2.Token // Access and refresh token pair
}

// Endpoint is the upstream identity provider.
//
// Refresh returns an error wrapping errors.ErrReauthRequired when the refresh
// token is permanently unusable and errors.ErrTemporarilyUnavailable for
// failures that may succeed on retry.
type Endpoint interface {
	AuthCodeURL(state, nonce, codeVerifier string) string
	Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

type exchangeOptions struct {
	codeVerifier string
	nonce        string
}

// ExchangeOption customises a code exchange.
type ExchangeOption func(*exchangeOptions)

// WithCodeVerifier sends the PKCE verifier that matches the authorization request.
func WithCodeVerifier(verifier string) ExchangeOption {
	return func(o *exchangeOptions) { o.codeVerifier = verifier }
}

// WithNonce requires the returned id_token to carry nonce.
func WithNonce(nonce string) ExchangeOption {
	return func(o *exchangeOptions) { o.nonce = nonce }
}
