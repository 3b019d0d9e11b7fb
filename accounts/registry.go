package accounts

import (
	"context"

	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/rs/zerolog/log"
)

// Registry records accounts as they complete OAuth grants and keeps their
// enabled flag in line with the access policy.
type Registry struct {
	repo Repo
}

func NewRegistry(repo Repo) *Registry {
	return &Registry{repo: repo}
}

// RecordGrant creates or refreshes the account after a successful code exchange.
// A new account starts enabled; an existing account keeps its enabled flag.
func (r *Registry) RecordGrant(ctx context.Context, email string, scopes []string) (*Account, error) {
	email = NormalizeEmail(email)
	now := NowTimeFunc()

	account, err := r.repo.Get(ctx, email)
	switch {
	case apperrors.Is(err, apperrors.ErrNotFound):
		account = &Account{
			Email:     email,
			Enabled:   true,
			CreatedAt: now,
		}
	case err != nil:
		return nil, apperrors.Wrapf(err, "loading account %s", email)
	}

	account.Scopes = append([]string(nil), scopes...)
	account.UpdatedAt = now
	account.LastAuthAt = now

	if err := r.repo.Upsert(ctx, account); err != nil {
		return nil, apperrors.Wrapf(err, "saving account %s", email)
	}
	return account, nil
}

// Get returns the stored account.
func (r *Registry) Get(ctx context.Context, email string) (*Account, error) {
	return r.repo.Get(ctx, NormalizeEmail(email))
}

// List returns every known account.
func (r *Registry) List(ctx context.Context) ([]*Account, error) {
	return r.repo.List(ctx)
}

// SyncEnabled applies the enabled flags from a policy to the accounts already
// registered. Emails without a stored account are ignored; accounts missing
// from the map are evaluated with defaultEnabled.
func (r *Registry) SyncEnabled(ctx context.Context, enabled map[string]bool, defaultEnabled bool) error {
	all, err := r.repo.List(ctx)
	if err != nil {
		return apperrors.Wrapf(err, "listing accounts")
	}

	for _, account := range all {
		want, ok := enabled[account.Email]
		if !ok {
			want = defaultEnabled
		}
		if want == account.Enabled {
			continue
		}
		if err := r.repo.SetEnabled(ctx, account.Email, want); err != nil {
			return apperrors.Wrapf(err, "updating account %s", account.Email)
		}
		log.Info().Str("account", account.Email).Bool("enabled", want).Msg("account enabled flag synced from policy")
	}
	return nil
}
