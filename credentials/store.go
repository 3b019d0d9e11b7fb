package credentials

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jrsteele09/go-workspace-gateway/accounts"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/rs/zerolog/log"
)

// Store is the encrypted credential store. Writes for one account are
// serialised in-process and ordered by IssuedAt in the backend.
type Store struct {
	repo   Repo
	cipher *Cipher
	locks  sync.Map // account -> *sync.Mutex
}

func NewStore(repo Repo, cipher *Cipher) *Store {
	return &Store{repo: repo, cipher: cipher}
}

// Get returns the decrypted record for account, or errors.ErrNotFound.
func (s *Store) Get(ctx context.Context, account string) (*Record, error) {
	account = accounts.NormalizeEmail(account)

	sealed, err := s.repo.Load(ctx, account)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.cipher.Open(account, sealed.Ciphertext)
	if err != nil {
		log.Error().Str("account", account).Msg("SECURITY_AUDIT: stored credential failed authentication")
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDecryptFailed, "decoding record: %v", err)
	}
	return &record, nil
}

// Put stores record for account. A record older than the stored one is
// rejected with errors.ErrStaleWrite; an equal IssuedAt overwrites.
func (s *Store) Put(ctx context.Context, account string, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	account = accounts.NormalizeEmail(account)

	plaintext, err := json.Marshal(record)
	if err != nil {
		return apperrors.Wrapf(err, "encoding record")
	}
	ciphertext, err := s.cipher.Seal(account, plaintext)
	if err != nil {
		return err
	}

	mu := s.lockFor(account)
	mu.Lock()
	defer mu.Unlock()

	return s.repo.Save(ctx, &Sealed{
		Account:    account,
		IssuedAt:   record.IssuedAt,
		Ciphertext: ciphertext,
	})
}

// Delete removes the record for account.
func (s *Store) Delete(ctx context.Context, account string) error {
	account = accounts.NormalizeEmail(account)

	mu := s.lockFor(account)
	mu.Lock()
	defer mu.Unlock()

	if err := s.repo.Remove(ctx, account); err != nil {
		return err
	}
	log.Info().Str("account", account).Str("event", "credentials_deleted").Msg("credentials deleted")
	return nil
}

// Accounts lists the accounts with a stored record.
func (s *Store) Accounts(ctx context.Context) ([]string, error) {
	return s.repo.Accounts(ctx)
}

func (s *Store) lockFor(account string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(account, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
