package upstream

import (
	"context"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"golang.org/x/oauth2"
)

// Options configures an OIDC endpoint.
type Options struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client // optional, used for discovery and token calls
}

var _ Endpoint = (*OIDCEndpoint)(nil)

// OIDCEndpoint talks to an OpenID Connect provider such as Google.
type OIDCEndpoint struct {
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
}

// Discover builds an endpoint from the issuer's discovery document.
func Discover(ctx context.Context, opts Options) (*OIDCEndpoint, error) {
	if opts.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, opts.HTTPClient)
	}
	provider, err := oidc.NewProvider(ctx, opts.Issuer)
	if err != nil {
		return nil, apperrors.Wrapf(err, "discovering %s", opts.Issuer)
	}

	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	cfg := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.RedirectURL,
		Scopes:       opts.Scopes,
		Endpoint:     endpoint,
	}
	return New(cfg, provider.Verifier(&oidc.Config{ClientID: opts.ClientID}), opts.HTTPClient), nil
}

// New builds an endpoint from an explicit oauth2 config and id_token verifier.
func New(cfg *oauth2.Config, verifier *oidc.IDTokenVerifier, httpClient *http.Client) *OIDCEndpoint {
	return &OIDCEndpoint{oauth: cfg, verifier: verifier, httpClient: httpClient}
}

// AuthCodeURL requests offline access with consent so the provider always
// returns a refresh token.
func (e *OIDCEndpoint) AuthCodeURL(state, nonce, codeVerifier string) string {
	return e.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oidc.Nonce(nonce),
		oauth2.S256ChallengeOption(codeVerifier),
	)
}

func (e *OIDCEndpoint) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Grant, error) {
	var o exchangeOptions
	for _, opt := range opts {
		opt(&o)
	}

	var authOpts []oauth2.AuthCodeOption
	if o.codeVerifier != "" {
		authOpts = append(authOpts, oauth2.VerifierOption(o.codeVerifier))
	}

	ctx = e.clientContext(ctx)
	tok, err := e.oauth.Exchange(ctx, code, authOpts...)
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, apperrors.Wrapf(apperrors.ErrMissingIdentity, "no id_token in token response")
	}
	idToken, err := e.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrMissingIdentity, "verifying id_token: %v", err)
	}
	if o.nonce != "" && idToken.Nonce != o.nonce {
		return nil, apperrors.ErrInvalidNonce
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrMissingIdentity, "decoding id_token claims: %v", err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return nil, apperrors.Wrapf(apperrors.ErrMissingIdentity, "id_token has no verified email")
	}

	scopes := e.oauth.Scopes
	if granted, ok := tok.Extra("scope").(string); ok && granted != "" {
		scopes = strings.Fields(granted)
	}

	return &Grant{Email: claims.Email, Scopes: scopes, Token: tok}, nil
}

// Refresh exchanges refreshToken for a new access token. The returned token
// keeps the original refresh token when the provider does not rotate it.
func (e *OIDCEndpoint) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	tok, err := e.oauth.TokenSource(e.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, classifyRefreshError(err)
	}
	return tok, nil
}

func (e *OIDCEndpoint) clientContext(ctx context.Context) context.Context {
	if e.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}
