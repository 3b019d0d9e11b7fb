package credentials

import (
	"context"
	"time"
)

// Sealed is the at-rest form of a record. Only IssuedAt is kept in clear so
// backends can order writes without decrypting.
type Sealed struct {
	Account    string
	IssuedAt   time.Time
	Ciphertext []byte
}

// Repo is a storage backend for sealed records.
//
// Save must atomically reject a write whose IssuedAt is before the stored one
// with errors.ErrStaleWrite. Load and Remove return errors.ErrNotFound for
// unknown accounts.
type Repo interface {
	Load(ctx context.Context, account string) (*Sealed, error)
	Save(ctx context.Context, sealed *Sealed) error
	Remove(ctx context.Context, account string) error
	Accounts(ctx context.Context) ([]string, error)
}
