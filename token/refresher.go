package token

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jrsteele09/go-workspace-gateway/accounts"
	"github.com/jrsteele09/go-workspace-gateway/credentials"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/jrsteele09/go-workspace-gateway/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// defaultTokenLifetime is assumed when the provider omits expires_in
const defaultTokenLifetime = time.Hour

// CredentialStore is the part of the credential store the refresher uses.
type CredentialStore interface {
	Get(ctx context.Context, account string) (*credentials.Record, error)
	Put(ctx context.Context, account string, record *credentials.Record) error
	Accounts(ctx context.Context) ([]string, error)
}

// RefreshEndpoint performs the outbound refresh exchange.
type RefreshEndpoint interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// AccountPolicy reports whether an account may currently be used.
type AccountPolicy interface {
	IsAllowed(account string) bool
}

// Settings is the subset of configuration the refresher needs.
type Settings interface {
	GetTokenSafetyMargin() time.Duration
	GetRefreshTimeout() time.Duration
	GetRefreshMaxAttempts() int
}

// Refresher hands out valid access tokens, refreshing them on demand. At most
// one refresh exchange is in flight per account; concurrent callers share its
// result.
type Refresher struct {
	store       CredentialStore
	endpoint    RefreshEndpoint
	group       singleflight.Group
	margin      time.Duration
	timeout     time.Duration
	maxAttempts uint
	newBackOff  func() backoff.BackOff
	policy      AccountPolicy
}

// RefresherOption customises a Refresher.
type RefresherOption func(*Refresher)

// WithBackOff replaces the retry schedule used between refresh attempts.
func WithBackOff(fn func() backoff.BackOff) RefresherOption {
	return func(r *Refresher) { r.newBackOff = fn }
}

// WithAccountPolicy makes background passes skip accounts the policy does not
// allow.
func WithAccountPolicy(p AccountPolicy) RefresherOption {
	return func(r *Refresher) { r.policy = p }
}

func NewRefresher(store CredentialStore, endpoint RefreshEndpoint, s Settings, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		store:       store,
		endpoint:    endpoint,
		margin:      s.GetTokenSafetyMargin(),
		timeout:     s.GetRefreshTimeout(),
		maxAttempts: uint(max(s.GetRefreshMaxAttempts(), 1)),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureValid returns an access token for account that stays valid for at
// least the safety margin, refreshing it first if needed.
//
// Errors wrap errors.ErrReauthRequired when the account must consent again and
// errors.ErrTemporarilyUnavailable when the caller may retry later.
func (r *Refresher) EnsureValid(ctx context.Context, account string) (string, error) {
	return r.ensure(ctx, accounts.NormalizeEmail(account), r.margin)
}

func (r *Refresher) ensure(ctx context.Context, account string, window time.Duration) (string, error) {
	record, err := r.load(ctx, account)
	if err != nil {
		return "", err
	}
	if !record.NeedsRefresh(NowTimeFunc(), window) {
		return record.AccessToken, nil
	}
	if !record.Refreshable() {
		return "", apperrors.Wrapf(apperrors.ErrReauthRequired, "account %s has no usable refresh token", account)
	}

	ch := r.group.DoChan(account, func() (any, error) {
		return r.refresh(account, window)
	})

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", apperrors.Wrapf(apperrors.ErrTemporarilyUnavailable, "waiting for refresh of %s: %v", account, ctx.Err())
	case <-timer.C:
		// Release the slot so a hung exchange does not block later callers
		r.group.Forget(account)
		return "", apperrors.Wrapf(apperrors.ErrTemporarilyUnavailable, "refresh of %s timed out after %s", account, r.timeout)
	}
}

// refresh runs inside the flight. It uses its own deadline so one caller
// giving up does not cancel the exchange for the others.
func (r *Refresher) refresh(account string, window time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	// Another flight may have stored a fresh token since the caller looked
	record, err := r.load(ctx, account)
	if err != nil {
		return "", err
	}
	if !record.NeedsRefresh(NowTimeFunc(), window) {
		return record.AccessToken, nil
	}
	if !record.Refreshable() {
		return "", apperrors.Wrapf(apperrors.ErrReauthRequired, "account %s has no usable refresh token", account)
	}

	tok, err := backoff.Retry(ctx, func() (*oauth2.Token, error) {
		tok, err := r.endpoint.Refresh(ctx, record.RefreshToken)
		if err == nil {
			return tok, nil
		}
		if apperrors.Is(err, apperrors.ErrReauthRequired) || apperrors.Is(err, apperrors.ErrClientRejected) {
			return nil, backoff.Permanent(err)
		}
		metrics.RefreshAttempts.WithLabelValues("retry").Inc()
		log.Warn().Err(err).Str("account", account).Msg("token refresh attempt failed")
		return nil, err
	}, backoff.WithBackOff(r.newBackOff()), backoff.WithMaxTries(r.maxAttempts))

	if err != nil {
		if apperrors.Is(err, apperrors.ErrReauthRequired) {
			metrics.RefreshAttempts.WithLabelValues("reauth").Inc()
			r.invalidate(ctx, account, record)
			return "", err
		}
		if apperrors.Is(err, apperrors.ErrClientRejected) {
			// stored grants stay intact; the gateway's client registration needs fixing
			metrics.RefreshAttempts.WithLabelValues("client_rejected").Inc()
			log.Error().Err(err).Str("account", account).Msg("token endpoint rejected the OAuth client; check GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")
			return "", apperrors.Wrapf(apperrors.ErrTemporarilyUnavailable, "refreshing %s: %v", account, err)
		}
		metrics.RefreshAttempts.WithLabelValues("unavailable").Inc()
		if apperrors.Is(err, apperrors.ErrTemporarilyUnavailable) {
			return "", err
		}
		return "", apperrors.Wrapf(apperrors.ErrTemporarilyUnavailable, "refreshing %s: %v", account, err)
	}

	next := credentials.FromOAuth2Token(tok, NowTimeFunc(), defaultTokenLifetime)
	if next.RefreshToken == "" {
		next.RefreshToken = record.RefreshToken
	}
	if next.AccessToken == "" {
		return "", apperrors.Wrapf(apperrors.ErrTemporarilyUnavailable, "provider returned no access token for %s", account)
	}

	if err := r.store.Put(ctx, account, next); err != nil {
		if apperrors.Is(err, apperrors.ErrStaleWrite) {
			// A newer grant landed while refreshing; prefer it
			if current, lerr := r.store.Get(ctx, account); lerr == nil && !current.NeedsRefresh(NowTimeFunc(), window) {
				return current.AccessToken, nil
			}
		}
		return "", apperrors.Wrapf(apperrors.ErrTemporarilyUnavailable, "storing refreshed token for %s: %v", account, err)
	}

	metrics.RefreshAttempts.WithLabelValues("success").Inc()
	log.Debug().Str("account", account).Time("expiry", next.Expiry).Msg("access token refreshed")
	return next.AccessToken, nil
}

// invalidate drops the refresh token so later calls fail fast without a
// network round trip until the account completes OAuth again.
func (r *Refresher) invalidate(ctx context.Context, account string, record *credentials.Record) {
	log.Warn().Str("account", account).Str("event", "reauth_required").Msg("SECURITY_AUDIT: refresh token rejected by provider, reauthentication required")

	// Same IssuedAt as the record that failed, so a grant stored meanwhile wins
	terminal := &credentials.Record{
		AccessToken: record.AccessToken,
		Expiry:      record.Expiry,
		IssuedAt:    record.IssuedAt,
	}
	if err := r.store.Put(ctx, account, terminal); err != nil && !apperrors.Is(err, apperrors.ErrStaleWrite) {
		log.Err(err).Str("account", account).Msg("failed to mark credentials as requiring reauthentication")
	}
}

func (r *Refresher) load(ctx context.Context, account string) (*credentials.Record, error) {
	record, err := r.store.Get(ctx, account)
	switch {
	case err == nil:
		return record, nil
	case apperrors.Is(err, apperrors.ErrNotFound):
		return nil, apperrors.Wrapf(apperrors.ErrReauthRequired, "no credentials stored for %s", account)
	case apperrors.Is(err, apperrors.ErrDecryptFailed):
		return nil, apperrors.Wrapf(apperrors.ErrReauthRequired, "stored credentials for %s are unreadable: %v", account, err)
	default:
		return nil, apperrors.Wrapf(apperrors.ErrTemporarilyUnavailable, "loading credentials for %s: %v", account, err)
	}
}
