package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jrsteele09/go-workspace-gateway/accounts"
	fakeaccountrepo "github.com/jrsteele09/go-workspace-gateway/accounts/repofake"
	accountsql "github.com/jrsteele09/go-workspace-gateway/accounts/sqlrepo"
	"github.com/jrsteele09/go-workspace-gateway/credentials"
	"github.com/jrsteele09/go-workspace-gateway/credentials/redisrepo"
	fakecredentialrepo "github.com/jrsteele09/go-workspace-gateway/credentials/repofake"
	credentialsql "github.com/jrsteele09/go-workspace-gateway/credentials/sqlrepo"
	"github.com/jrsteele09/go-workspace-gateway/gateway"
	"github.com/jrsteele09/go-workspace-gateway/internal/config"
	"github.com/jrsteele09/go-workspace-gateway/internal/metrics"
	"github.com/jrsteele09/go-workspace-gateway/policy"
	"github.com/jrsteele09/go-workspace-gateway/server"
	"github.com/jrsteele09/go-workspace-gateway/server/authflowrepo"
	"github.com/jrsteele09/go-workspace-gateway/sessions"
	"github.com/jrsteele09/go-workspace-gateway/token"
	"github.com/jrsteele09/go-workspace-gateway/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const policyReloadDebounce = 500 * time.Millisecond

// gatewayProcess holds the wired components and what must be released on exit.
type gatewayProcess struct {
	server    *server.Server
	binder    *sessions.Binder
	refresher *token.Refresher
	watcher   *policy.Watcher
	closers   []io.Closer
}

func build(ctx context.Context, c config.Config) (*gatewayProcess, error) {
	p := &gatewayProcess{}

	cipher, err := newCipher(c)
	if err != nil {
		return nil, err
	}

	credentialRepo, accountRepo, err := p.openStores(ctx, c)
	if err != nil {
		p.close()
		return nil, err
	}
	store := credentials.NewStore(credentialRepo, cipher)
	registry := accounts.NewRegistry(accountRepo)

	pol, err := p.loadPolicy(c)
	if err != nil {
		p.close()
		return nil, err
	}
	syncAccounts := func(s *policy.Snapshot) {
		if err := registry.SyncEnabled(ctx, s.EnabledFlags(), !s.RestrictAccounts()); err != nil {
			log.Error().Err(err).Msg("failed to sync account flags from policy")
		}
	}
	pol.Subscribe(syncAccounts)
	syncAccounts(pol.Snapshot())

	endpoint, err := upstream.Discover(ctx, upstream.Options{
		Issuer:       c.GetIssuer(),
		ClientID:     c.GetClientID(),
		ClientSecret: c.GetClientSecret(),
		RedirectURL:  c.GetRedirectURL(),
		Scopes:       c.GetScopes(),
	})
	if err != nil {
		p.close()
		return nil, fmt.Errorf("discovering OAuth provider %s: %w", c.GetIssuer(), err)
	}

	p.refresher = token.NewRefresher(store, endpoint, c, token.WithAccountPolicy(pol))
	p.binder = sessions.NewBinder(c.GetSessionTimeout())

	var limiter *gateway.RateLimiter
	if c.GetEnableRateLimiting() {
		limiter = gateway.NewRateLimiter(c.GetRateLimitPerMinute())
	}

	gw := gateway.New(gateway.Deps{
		Sessions:    p.binder,
		Policy:      pol,
		Tokens:      p.refresher,
		Exchanger:   endpoint,
		Credentials: store,
		Accounts:    registry,
		RateLimiter: limiter,
	})

	deps := server.Deps{
		Gateway:  gw,
		Sessions: p.binder,
		Policy:   pol,
		Endpoint: endpoint,
		Flows:    authflowrepo.NewInMemoryRepo(),
	}
	if c.GetMetricsEnabled() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.RegisterCollectors(reg)
		deps.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	p.server, err = server.New(c, deps)
	if err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

// newCipher builds the credential cipher. Outside production a missing key
// falls back to a random per-process key, so stored credentials do not
// survive a restart.
func newCipher(c config.Config) (*credentials.Cipher, error) {
	key, err := c.GetCredentialEncryptionKey()
	if err != nil {
		if c.IsProduction() {
			return nil, fmt.Errorf("%w: %v", errFatalConfig, err)
		}
		log.Warn().Err(err).Msg("using an ephemeral credential encryption key")
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating encryption key: %w", err)
		}
	}
	return credentials.NewCipher(key)
}

func (p *gatewayProcess) openStores(ctx context.Context, c config.Config) (credentials.Repo, accounts.Repo, error) {
	switch c.GetCredentialBackend() {
	case config.BackendMemory:
		log.Warn().Msg("credentials are kept in memory only")
		return fakecredentialrepo.NewFakeCredentialRepo(), fakeaccountrepo.NewFakeAccountRepo(), nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		p.closers = append(p.closers, client)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", c.GetRedisAddr(), err)
		}
		// the account registry stays local; only credentials are shared
		db, err := p.openDatabase(c.GetDatabasePath())
		if err != nil {
			return nil, nil, err
		}
		accountRepo, err := accountsql.New(db)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("addr", c.GetRedisAddr()).Msg("credential store: redis")
		return redisrepo.New(client), accountRepo, nil

	default:
		db, err := p.openDatabase(c.GetDatabasePath())
		if err != nil {
			return nil, nil, err
		}
		credentialRepo, err := credentialsql.New(db)
		if err != nil {
			return nil, nil, err
		}
		accountRepo, err := accountsql.New(db)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", c.GetDatabasePath()).Msg("credential store: sqlite")
		return credentialRepo, accountRepo, nil
	}
}

func (p *gatewayProcess) openDatabase(path string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	// single writer for sqlite
	sqlDB.SetMaxOpenConns(1)
	p.closers = append(p.closers, sqlDB)
	return db, nil
}

func (p *gatewayProcess) loadPolicy(c config.Config) (*policy.Policy, error) {
	path := c.GetPolicyFile()
	if path == "" {
		snapshot, err := policy.FromEnvironment(c)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errFatalConfig, err)
		}
		return policy.New(snapshot), nil
	}

	snapshot, err := policy.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errFatalConfig, err)
	}
	pol := policy.New(snapshot)
	p.watcher = policy.NewWatcher(path, pol, policyReloadDebounce)
	return pol, nil
}

func (p *gatewayProcess) startBackground(ctx context.Context, c config.Config) {
	go p.binder.Run(ctx, c.GetSessionSweepInterval())
	go p.refresher.Run(ctx, c.GetBackgroundRefreshInterval())
	go p.server.RunFlowSweeper(ctx, c.GetAuthCodeTimeout())
	if p.watcher != nil {
		if err := p.watcher.Start(ctx); err != nil {
			log.Error().Err(err).Msg("policy hot reload disabled")
			p.watcher = nil
		}
	}
}

func (p *gatewayProcess) close() {
	if p.watcher != nil {
		p.watcher.Stop()
	}
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}
