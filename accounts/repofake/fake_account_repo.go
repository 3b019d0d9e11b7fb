package fakeaccountrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/go-workspace-gateway/accounts"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
)

var _ accounts.Repo = (*FakeAccountRepo)(nil)

type FakeAccountRepo struct {
	accounts map[string]accounts.Account
	lock     sync.RWMutex
}

func NewFakeAccountRepo() *FakeAccountRepo {
	return &FakeAccountRepo{
		accounts: make(map[string]accounts.Account),
	}
}

func (r *FakeAccountRepo) Upsert(_ context.Context, account *accounts.Account) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	stored := *account
	stored.Scopes = append([]string(nil), account.Scopes...)
	r.accounts[account.Email] = stored
	return nil
}

func (r *FakeAccountRepo) Get(_ context.Context, email string) (*accounts.Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	account, ok := r.accounts[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &account, nil
}

func (r *FakeAccountRepo) SetEnabled(_ context.Context, email string, enabled bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	account, ok := r.accounts[email]
	if !ok {
		return apperrors.ErrNotFound
	}
	account.Enabled = enabled
	account.UpdatedAt = accounts.NowTimeFunc()
	r.accounts[email] = account
	return nil
}

func (r *FakeAccountRepo) List(_ context.Context) ([]*accounts.Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*accounts.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		a := account
		list = append(list, &a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Email < list[j].Email })
	return list, nil
}
