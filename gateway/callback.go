package gateway

import (
	"context"
	"time"

	"github.com/jrsteele09/go-workspace-gateway/accounts"
	"github.com/jrsteele09/go-workspace-gateway/credentials"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/jrsteele09/go-workspace-gateway/sessions"
	"github.com/jrsteele09/go-workspace-gateway/upstream"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// defaultTokenLifetime is assumed when the provider omits expires_in
const defaultTokenLifetime = time.Hour

// BindSessionFromOAuthCallback completes the OAuth flow for sessionID: it
// exchanges the code, checks the account against the policy, stores the
// credentials, registers the account and binds the session to it.
//
// A disallowed account yields a *Denial of kind AccountDisabled and nothing is
// stored. A session already bound to another account yields AlreadyBound.
func (g *Gateway) BindSessionFromOAuthCallback(ctx context.Context, sessionID, code string, opts ...upstream.ExchangeOption) (*accounts.Account, error) {
	if sessionID == "" {
		return nil, apperrors.ErrInvalidSession
	}

	grant, err := g.deps.Exchanger.Exchange(ctx, code, opts...)
	if err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("authorization code exchange failed")
		return nil, err
	}
	email := accounts.NormalizeEmail(grant.Email)

	if !g.deps.Policy.Snapshot().IsAllowed(email) {
		log.Warn().Str("session", sessionID).Str("account", email).Msg("SECURITY_AUDIT: OAuth completed for an account the policy does not allow")
		return nil, deny(AccountDisabled, email, "", nil)
	}

	if res := g.deps.Sessions.Resolve(sessionID); res.State == sessions.Bound && res.Account != email {
		return nil, deny(AlreadyBound, email, "", apperrors.ErrAlreadyBound)
	}

	if grant.Token.RefreshToken == "" {
		log.Warn().Str("account", email).Msg("provider returned no refresh token; the account will need to consent again when the access token expires")
	}
	record := credentials.FromOAuth2Token(grant.Token, NowTimeFunc(), defaultTokenLifetime)
	if err := g.deps.Credentials.Put(ctx, email, record); err != nil {
		return nil, apperrors.Wrapf(err, "storing credentials for %s", email)
	}
	log.Info().Str("account", email).Str("event", "credentials_stored").Msg("credentials stored")

	account, err := g.deps.Accounts.RecordGrant(ctx, email, grant.Scopes)
	if err != nil {
		return nil, err
	}

	if err := g.deps.Sessions.Bind(sessionID, email); err != nil {
		if apperrors.Is(err, apperrors.ErrAlreadyBound) {
			return nil, deny(AlreadyBound, email, "", err)
		}
		return nil, err
	}
	return account, nil
}
