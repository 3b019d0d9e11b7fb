package gateway_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jrsteele09/go-workspace-gateway/accounts"
	fakeaccountrepo "github.com/jrsteele09/go-workspace-gateway/accounts/repofake"
	"github.com/jrsteele09/go-workspace-gateway/credentials"
	fakecredentialrepo "github.com/jrsteele09/go-workspace-gateway/credentials/repofake"
	"github.com/jrsteele09/go-workspace-gateway/gateway"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/jrsteele09/go-workspace-gateway/policy"
	"github.com/jrsteele09/go-workspace-gateway/sessions"
	"github.com/jrsteele09/go-workspace-gateway/token"
	"github.com/jrsteele09/go-workspace-gateway/upstream"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testSession = "S1"
	alice       = "alice@example.com"
	bob         = "bob@example.com"
)

var baseTime = time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)

type refreshSettings struct{}

func (refreshSettings) GetTokenSafetyMargin() time.Duration { return 60 * time.Second }
func (refreshSettings) GetRefreshTimeout() time.Duration    { return 2 * time.Second }
func (refreshSettings) GetRefreshMaxAttempts() int          { return 3 }

// fakeUpstream serves both code exchanges and refreshes.
type fakeUpstream struct {
	grants    map[string]*upstream.Grant // code -> grant
	refreshes atomic.Int32
	refreshFn func() (*oauth2.Token, error)
}

func (u *fakeUpstream) Exchange(_ context.Context, code string, _ ...upstream.ExchangeOption) (*upstream.Grant, error) {
	g, ok := u.grants[code]
	if !ok {
		return nil, apperrors.ErrInvalidGrant
	}
	return g, nil
}

func (u *fakeUpstream) Refresh(context.Context, string) (*oauth2.Token, error) {
	u.refreshes.Add(1)
	return u.refreshFn()
}

type gatewayFixture struct {
	upstream *fakeUpstream
	binder   *sessions.Binder
	policy   *policy.Policy
	store    *credentials.Store
	accounts *accounts.Registry
	gateway  *gateway.Gateway
	now      time.Time
}

func setupGateway(t *testing.T, limiter *gateway.RateLimiter) *gatewayFixture {
	t.Helper()

	f := &gatewayFixture{now: baseTime}
	clock := func() time.Time { return f.now }
	for _, nowFn := range []*func() time.Time{&sessions.NowTimeFunc, &token.NowTimeFunc, &gateway.NowTimeFunc, &accounts.NowTimeFunc} {
		orig := *nowFn
		*nowFn = clock
		t.Cleanup(func() { *nowFn = orig })
	}

	c, err := credentials.NewCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	f.upstream = &fakeUpstream{
		grants: map[string]*upstream.Grant{
			"code123": {
				Email:  "Alice@Example.com",
				Scopes: []string{"openid", "email", "gmail"},
				Token:  &oauth2.Token{AccessToken: "ya29.alice", RefreshToken: "1//alice", Expiry: baseTime.Add(time.Hour)},
			},
			"code-expiring": {
				Email: alice,
				Token: &oauth2.Token{AccessToken: "ya29.expiring", RefreshToken: "1//alice", Expiry: baseTime.Add(30 * time.Second)},
			},
			"code-bob": {
				Email: bob,
				Token: &oauth2.Token{AccessToken: "ya29.bob", RefreshToken: "1//bob", Expiry: baseTime.Add(time.Hour)},
			},
		},
		refreshFn: func() (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "ya29.refreshed", Expiry: f.now.Add(time.Hour)}, nil
		},
	}
	f.binder = sessions.NewBinder(30 * time.Minute)
	f.policy = policy.New(policy.AllowAll())
	f.store = credentials.NewStore(fakecredentialrepo.NewFakeCredentialRepo(), c)
	f.accounts = accounts.NewRegistry(fakeaccountrepo.NewFakeAccountRepo())

	refresher := token.NewRefresher(f.store, f.upstream, refreshSettings{},
		token.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))

	f.gateway = gateway.New(gateway.Deps{
		Sessions:    f.binder,
		Policy:      f.policy,
		Tokens:      refresher,
		Exchanger:   f.upstream,
		Credentials: f.store,
		Accounts:    f.accounts,
		RateLimiter: limiter,
	})
	return f
}

func (f *gatewayFixture) bind(t *testing.T, session, code string) {
	t.Helper()
	_, err := f.gateway.BindSessionFromOAuthCallback(context.Background(), session, code)
	require.NoError(t, err)
}

func (f *gatewayFixture) applyPolicy(t *testing.T, doc policy.Document) {
	t.Helper()
	s, err := policy.Compile(doc, "test")
	require.NoError(t, err)
	f.policy.Apply(s)
}

func requireDenial(t *testing.T, err error, kind gateway.Kind) *gateway.Denial {
	t.Helper()
	var d *gateway.Denial
	require.ErrorAs(t, err, &d)
	require.Equal(t, kind, d.Kind)
	return d
}

func TestAuthorize_UnknownSessionNotAuthenticated(t *testing.T) {
	f := setupGateway(t, nil)

	_, err := f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
	d := requireDenial(t, err, gateway.NotAuthenticated)
	require.Empty(t, d.Account)
	require.True(t, apperrors.Is(err, apperrors.ErrNotAuthenticated))
	require.Equal(t, 0, f.binder.Count(), "a denial creates no session")
}

func TestAuthorize_UnboundSessionNotAuthenticated(t *testing.T) {
	f := setupGateway(t, nil)
	f.binder.Open(testSession)

	_, err := f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
	requireDenial(t, err, gateway.NotAuthenticated)
}

func TestAuthorize_AfterCallback(t *testing.T) {
	f := setupGateway(t, nil)
	f.bind(t, testSession, "code123")

	ac, err := f.gateway.Authorize(context.Background(), testSession, "gmail.read", map[string]any{"q": "is:unread"})
	require.NoError(t, err)
	require.Equal(t, alice, ac.Account)
	require.Equal(t, "gmail.read", ac.Capability)
	require.Equal(t, "ya29.alice", ac.AccessToken.Value())
	require.Equal(t, map[string]any{"q": "is:unread"}, ac.Payload)

	tok, err := ac.TokenSource().Token()
	require.NoError(t, err)
	require.Equal(t, "ya29.alice", tok.AccessToken)
}

func TestAuthorize_ValidTokenNeverRefreshes(t *testing.T) {
	f := setupGateway(t, nil)
	f.bind(t, testSession, "code123")

	for i := 0; i < 10; i++ {
		_, err := f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
		require.NoError(t, err)
	}
	require.Equal(t, int32(0), f.upstream.refreshes.Load())
}

func TestAuthorize_TouchesSession(t *testing.T) {
	f := setupGateway(t, nil)
	f.bind(t, testSession, "code123")

	f.now = f.now.Add(20 * time.Minute)
	_, err := f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
	require.NoError(t, err)

	info, ok := f.binder.Info(testSession)
	require.True(t, ok)
	require.Equal(t, f.now.Add(30*time.Minute), info.ExpiresAt)
}

func TestAuthorize_CapabilityForbidden(t *testing.T) {
	f := setupGateway(t, nil)
	f.bind(t, testSession, "code123")
	before, _ := f.binder.Info(testSession)

	f.applyPolicy(t, policy.Document{
		Accounts: map[string]policy.AccountEntry{alice: {Capabilities: []string{"gmail.read"}}},
	})
	f.now = f.now.Add(time.Minute)

	_, err := f.gateway.Authorize(context.Background(), testSession, "drive.write", nil)
	d := requireDenial(t, err, gateway.CapabilityForbidden)
	require.Equal(t, alice, d.Account)
	require.Equal(t, "drive.write", d.Capability)

	after, _ := f.binder.Info(testSession)
	require.Equal(t, before.ExpiresAt, after.ExpiresAt, "denials do not touch the session")

	_, err = f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
	require.NoError(t, err)
}

func TestAuthorize_AccountDisabledByReload(t *testing.T) {
	f := setupGateway(t, nil)
	f.bind(t, testSession, "code123")

	disabled := false
	f.applyPolicy(t, policy.Document{
		Accounts: map[string]policy.AccountEntry{alice: {Enabled: &disabled}},
	})

	_, err := f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
	requireDenial(t, err, gateway.AccountDisabled)
	require.True(t, apperrors.Is(err, apperrors.ErrAccountDisabled))
}

func TestAuthorize_RefreshesExpiringToken(t *testing.T) {
	f := setupGateway(t, nil)
	f.bind(t, testSession, "code-expiring")

	ac, err := f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
	require.NoError(t, err)
	require.Equal(t, "ya29.refreshed", ac.AccessToken.Value())
	require.Equal(t, int32(1), f.upstream.refreshes.Load())
}

func TestAuthorize_RevokedRefreshTokenNeedsReauth(t *testing.T) {
	f := setupGateway(t, nil)
	f.bind(t, testSession, "code-expiring")
	f.upstream.refreshFn = func() (*oauth2.Token, error) {
		return nil, apperrors.Wrapf(apperrors.ErrReauthRequired, "invalid_grant")
	}

	_, err := f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
	requireDenial(t, err, gateway.ReauthRequired)

	f.now = f.now.Add(time.Minute)
	_, err = f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
	requireDenial(t, err, gateway.ReauthRequired)
	require.Equal(t, int32(1), f.upstream.refreshes.Load())

	// a fresh OAuth exchange recovers the account
	f.upstream.grants["code456"] = &upstream.Grant{
		Email: alice,
		Token: &oauth2.Token{AccessToken: "ya29.again", RefreshToken: "1//again", Expiry: f.now.Add(time.Hour)},
	}
	f.bind(t, testSession, "code456")
	ac, err := f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
	require.NoError(t, err)
	require.Equal(t, "ya29.again", ac.AccessToken.Value())
}

func TestAuthorize_TransientUpstreamFailure(t *testing.T) {
	f := setupGateway(t, nil)
	f.bind(t, testSession, "code-expiring")
	f.upstream.refreshFn = func() (*oauth2.Token, error) {
		return nil, apperrors.ErrTemporarilyUnavailable
	}

	_, err := f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
	d := requireDenial(t, err, gateway.TemporarilyUnavailable)
	require.True(t, d.Retryable())
	require.Equal(t, int32(3), f.upstream.refreshes.Load())
}

func TestAuthorize_ExpiredSessionLikeUnknown(t *testing.T) {
	f := setupGateway(t, nil)
	f.bind(t, testSession, "code123")

	f.now = f.now.Add(31 * time.Minute)
	require.Equal(t, sessions.Expired, f.binder.Resolve(testSession).State)

	_, err := f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
	d := requireDenial(t, err, gateway.NotAuthenticated)
	require.Empty(t, d.Account)
}

func TestAuthorize_RateLimited(t *testing.T) {
	f := setupGateway(t, gateway.NewRateLimiter(2))
	f.bind(t, testSession, "code123")

	for i := 0; i < 2; i++ {
		_, err := f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
		require.NoError(t, err)
	}
	_, err := f.gateway.Authorize(context.Background(), testSession, "gmail.read", nil)
	d := requireDenial(t, err, gateway.RateLimited)
	require.True(t, d.Retryable())

	// budgets are per account
	f.bind(t, "S2", "code-bob")
	_, err = f.gateway.Authorize(context.Background(), "S2", "gmail.read", nil)
	require.NoError(t, err)
}

func TestBindSessionFromOAuthCallback_StoresCredentialsAndAccount(t *testing.T) {
	f := setupGateway(t, nil)
	ctx := context.Background()

	account, err := f.gateway.BindSessionFromOAuthCallback(ctx, testSession, "code123")
	require.NoError(t, err)
	require.Equal(t, alice, account.Email)
	require.True(t, account.Enabled)
	require.Equal(t, []string{"openid", "email", "gmail"}, account.Scopes)

	record, err := f.store.Get(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, "ya29.alice", record.AccessToken)
	require.Equal(t, "1//alice", record.RefreshToken)
	require.Equal(t, baseTime, record.IssuedAt.UTC())

	require.Equal(t, sessions.Resolution{State: sessions.Bound, Account: alice}, f.binder.Resolve(testSession))
}

func TestBindSessionFromOAuthCallback_DisallowedAccountStoresNothing(t *testing.T) {
	f := setupGateway(t, nil)
	ctx := context.Background()
	f.applyPolicy(t, policy.Document{
		RestrictAccounts: true,
		Accounts:         map[string]policy.AccountEntry{bob: {}},
	})

	_, err := f.gateway.BindSessionFromOAuthCallback(ctx, testSession, "code123")
	requireDenial(t, err, gateway.AccountDisabled)

	_, err = f.store.Get(ctx, alice)
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	_, err = f.accounts.Get(ctx, alice)
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	require.Equal(t, sessions.Unbound, f.binder.Resolve(testSession).State)
}

func TestBindSessionFromOAuthCallback_AlreadyBound(t *testing.T) {
	f := setupGateway(t, nil)
	ctx := context.Background()
	f.bind(t, testSession, "code123")

	_, err := f.gateway.BindSessionFromOAuthCallback(ctx, testSession, "code-bob")
	requireDenial(t, err, gateway.AlreadyBound)
	require.True(t, apperrors.Is(err, apperrors.ErrAlreadyBound))
	require.Equal(t, alice, f.binder.Resolve(testSession).Account)

	_, err = f.store.Get(ctx, bob)
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	// the same account may complete the flow again on the same session
	_, err = f.gateway.BindSessionFromOAuthCallback(ctx, testSession, "code123")
	require.NoError(t, err)
}

func TestBindSessionFromOAuthCallback_Errors(t *testing.T) {
	f := setupGateway(t, nil)

	_, err := f.gateway.BindSessionFromOAuthCallback(context.Background(), "", "code123")
	require.True(t, apperrors.Is(err, apperrors.ErrInvalidSession))

	_, err = f.gateway.BindSessionFromOAuthCallback(context.Background(), testSession, "bogus")
	require.True(t, apperrors.Is(err, apperrors.ErrInvalidGrant))
	require.Equal(t, sessions.Unbound, f.binder.Resolve(testSession).State)
}

func TestDenial_Error(t *testing.T) {
	d := &gateway.Denial{Kind: gateway.CapabilityForbidden, Account: alice, Capability: "drive.write"}
	require.Equal(t, "capability_forbidden (account alice@example.com): capability drive.write", d.Error())
	require.False(t, d.Retryable())
	require.False(t, apperrors.Is(d, apperrors.ErrAccountDisabled))
}
