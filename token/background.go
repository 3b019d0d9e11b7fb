package token

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/rs/zerolog/log"
)

// Run refreshes tokens that will expire within two safety margins every
// interval, so interactive calls rarely wait on the provider. It returns when
// ctx is cancelled.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshExpiring(ctx)
		}
	}
}

// RefreshExpiring performs a single background pass and returns how many
// accounts now hold a valid token. Accounts the policy disallows are skipped.
func (r *Refresher) RefreshExpiring(ctx context.Context) int {
	all, err := r.store.Accounts(ctx)
	if err != nil {
		log.Err(err).Msg("background refresh: listing accounts")
		return 0
	}

	valid := 0
	for _, account := range all {
		if ctx.Err() != nil {
			return valid
		}
		if r.policy != nil && !r.policy.IsAllowed(account) {
			log.Debug().Str("account", account).Msg("background refresh: account not allowed by policy")
			continue
		}
		if _, err := r.ensure(ctx, account, 2*r.margin); err != nil {
			if !apperrors.Is(err, apperrors.ErrReauthRequired) {
				log.Warn().Err(err).Str("account", account).Msg("background refresh failed")
			}
			continue
		}
		valid++
	}
	return valid
}
