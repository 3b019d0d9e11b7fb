package redisrepo

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/go-workspace-gateway/credentials"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/redis/go-redis/v9"
)

var _ credentials.Repo = (*CredentialRepo)(nil)

const (
	keyPrefix  = "credential:"
	maxRetries = 5
)

// getter is satisfied by both the client and a watched transaction
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type entry struct {
	IssuedAt   int64  `json:"issued_at"` // unix nanoseconds
	Ciphertext []byte `json:"ciphertext"`
}

// CredentialRepo stores sealed credentials in redis, one JSON value per account.
type CredentialRepo struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *CredentialRepo {
	return &CredentialRepo{client: client}
}

func key(account string) string {
	return keyPrefix + account
}

func (r *CredentialRepo) Load(ctx context.Context, account string) (*credentials.Sealed, error) {
	e, err := r.get(ctx, r.client, account)
	if err != nil {
		return nil, err
	}
	return &credentials.Sealed{
		Account:    account,
		IssuedAt:   time.Unix(0, e.IssuedAt).UTC(),
		Ciphertext: e.Ciphertext,
	}, nil
}

// Save performs a WATCH based compare-and-set so that concurrent writers from
// other processes cannot replace a newer record.
func (r *CredentialRepo) Save(ctx context.Context, sealed *credentials.Sealed) error {
	k := key(sealed.Account)
	payload, err := json.Marshal(entry{IssuedAt: sealed.IssuedAt.UnixNano(), Ciphertext: sealed.Ciphertext})
	if err != nil {
		return apperrors.Wrapf(err, "encoding credential")
	}

	txf := func(tx *redis.Tx) error {
		existing, err := r.get(ctx, tx, sealed.Account)
		switch {
		case apperrors.Is(err, apperrors.ErrNotFound):
		case err != nil:
			return err
		case existing.IssuedAt > sealed.IssuedAt.UnixNano():
			return apperrors.ErrStaleWrite
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, payload, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err := r.client.Watch(ctx, txf, k)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return apperrors.Wrapf(apperrors.ErrTemporarilyUnavailable, "credential write for %s kept conflicting", sealed.Account)
}

func (r *CredentialRepo) Remove(ctx context.Context, account string) error {
	n, err := r.client.Del(ctx, key(account)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *CredentialRepo) Accounts(ctx context.Context) ([]string, error) {
	var list []string
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		list = append(list, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(list)
	return list, nil
}

func (r *CredentialRepo) get(ctx context.Context, c getter, account string) (*entry, error) {
	raw, err := c.Get(ctx, key(account)).Bytes()
	if err == redis.Nil {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDecryptFailed, "decoding stored credential: %v", err)
	}
	return &e, nil
}
