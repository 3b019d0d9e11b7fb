package fakecredentialrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/go-workspace-gateway/credentials"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
)

var _ credentials.Repo = (*FakeCredentialRepo)(nil)

type FakeCredentialRepo struct {
	records map[string]credentials.Sealed
	lock    sync.RWMutex
}

func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{
		records: make(map[string]credentials.Sealed),
	}
}

func (r *FakeCredentialRepo) Load(_ context.Context, account string) (*credentials.Sealed, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	sealed, ok := r.records[account]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	sealed.Ciphertext = append([]byte(nil), sealed.Ciphertext...)
	return &sealed, nil
}

func (r *FakeCredentialRepo) Save(_ context.Context, sealed *credentials.Sealed) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if existing, ok := r.records[sealed.Account]; ok && existing.IssuedAt.After(sealed.IssuedAt) {
		return apperrors.ErrStaleWrite
	}
	stored := *sealed
	stored.Ciphertext = append([]byte(nil), sealed.Ciphertext...)
	r.records[sealed.Account] = stored
	return nil
}

func (r *FakeCredentialRepo) Remove(_ context.Context, account string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.records[account]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.records, account)
	return nil
}

func (r *FakeCredentialRepo) Accounts(_ context.Context) ([]string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]string, 0, len(r.records))
	for account := range r.records {
		list = append(list, account)
	}
	sort.Strings(list)
	return list, nil
}
