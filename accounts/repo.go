package accounts

import "context"

// Repo persists accounts. Get and SetEnabled return errors.ErrNotFound for unknown emails.
type Repo interface {
	Upsert(ctx context.Context, account *Account) error
	Get(ctx context.Context, email string) (*Account, error)
	SetEnabled(ctx context.Context, email string, enabled bool) error
	List(ctx context.Context) ([]*Account, error)
}
