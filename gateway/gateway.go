package gateway

import (
	"context"

	"github.com/jrsteele09/go-workspace-gateway/accounts"
	"github.com/jrsteele09/go-workspace-gateway/credentials"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/jrsteele09/go-workspace-gateway/internal/metrics"
	"github.com/jrsteele09/go-workspace-gateway/policy"
	"github.com/jrsteele09/go-workspace-gateway/sessions"
	"github.com/jrsteele09/go-workspace-gateway/upstream"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// SessionBinder is the session table used by the gateway.
type SessionBinder interface {
	Resolve(id string) sessions.Resolution
	Bind(id, account string) error
	Touch(id string) error
}

// PolicySource supplies the active policy snapshot.
type PolicySource interface {
	Snapshot() *policy.Snapshot
}

// TokenSource returns a currently valid access token for an account.
type TokenSource interface {
	EnsureValid(ctx context.Context, account string) (string, error)
}

// CodeExchanger turns an authorization code into a grant.
type CodeExchanger interface {
	Exchange(ctx context.Context, code string, opts ...upstream.ExchangeOption) (*upstream.Grant, error)
}

// CredentialWriter persists token material.
type CredentialWriter interface {
	Put(ctx context.Context, account string, record *credentials.Record) error
}

// AccountRecorder registers accounts that completed a grant.
type AccountRecorder interface {
	RecordGrant(ctx context.Context, email string, scopes []string) (*accounts.Account, error)
}

// Deps are the collaborators of a Gateway.
type Deps struct {
	Sessions    SessionBinder
	Policy      PolicySource
	Tokens      TokenSource
	Exchanger   CodeExchanger
	Credentials CredentialWriter
	Accounts    AccountRecorder
	RateLimiter *RateLimiter // optional
}

// AuthorizedContext is everything the caller needs to perform the upstream
// call on behalf of the bound account.
type AuthorizedContext struct {
	SessionID   string             `json:"session_id"`
	Account     string             `json:"account"`
	Capability  string             `json:"capability"`
	AccessToken credentials.Secret `json:"access_token"`
	Payload     any                `json:"payload,omitempty"`
}

// TokenSource returns an oauth2 token source carrying the access token, for
// building upstream API clients.
func (a *AuthorizedContext) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: a.AccessToken.Value(), TokenType: "Bearer"})
}

// Gateway authorises inbound requests against the session, policy and
// credential state.
type Gateway struct {
	deps Deps
}

func New(deps Deps) *Gateway {
	return &Gateway{deps: deps}
}

// Authorize resolves the session to its account, applies the policy and
// returns a context holding a valid access token. Every refusal is a *Denial;
// a denial never modifies session or credential state.
func (g *Gateway) Authorize(ctx context.Context, sessionID, capability string, payload any) (*AuthorizedContext, error) {
	res := g.deps.Sessions.Resolve(sessionID)
	if res.State != sessions.Bound {
		return nil, g.denied(deny(NotAuthenticated, "", capability, nil), sessionID)
	}
	account := res.Account

	snapshot := g.deps.Policy.Snapshot()
	if !snapshot.IsAllowed(account) {
		return nil, g.denied(deny(AccountDisabled, account, capability, nil), sessionID)
	}
	if !snapshot.CanInvoke(account, capability) {
		return nil, g.denied(deny(CapabilityForbidden, account, capability, nil), sessionID)
	}

	if g.deps.RateLimiter != nil && !g.deps.RateLimiter.Allow(account) {
		return nil, g.denied(deny(RateLimited, account, capability, nil), sessionID)
	}

	accessToken, err := g.deps.Tokens.EnsureValid(ctx, account)
	if err != nil {
		kind := TemporarilyUnavailable
		if apperrors.Is(err, apperrors.ErrReauthRequired) {
			kind = ReauthRequired
		}
		return nil, g.denied(deny(kind, account, capability, err), sessionID)
	}

	if err := g.deps.Sessions.Touch(sessionID); err != nil {
		// expired between resolve and touch
		return nil, g.denied(deny(NotAuthenticated, account, capability, err), sessionID)
	}

	metrics.AuthorizeOutcomes.WithLabelValues("authorized").Inc()
	return &AuthorizedContext{
		SessionID:   sessionID,
		Account:     account,
		Capability:  capability,
		AccessToken: credentials.NewSecret(accessToken),
		Payload:     payload,
	}, nil
}

func (g *Gateway) denied(d *Denial, sessionID string) *Denial {
	metrics.AuthorizeOutcomes.WithLabelValues(string(d.Kind)).Inc()

	event := log.Info()
	if d.Kind == ReauthRequired || d.Kind == TemporarilyUnavailable {
		event = log.Warn().AnErr("cause", d.Cause)
	}
	event.Str("session", sessionID).
		Str("account", d.Account).
		Str("capability", d.Capability).
		Str("denial", string(d.Kind)).
		Msg("request denied")
	return d
}
