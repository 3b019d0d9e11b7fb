package sqlrepo

import (
	"context"
	"time"

	"github.com/jrsteele09/go-workspace-gateway/credentials"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ credentials.Repo = (*CredentialRepo)(nil)

// credentialModel is the credentials table row. IssuedAt is kept as unix
// nanoseconds so ordering does not depend on the driver's time encoding.
type credentialModel struct {
	Account    string `gorm:"primaryKey;size:320"`
	IssuedAt   int64  `gorm:"not null"`
	Ciphertext []byte `gorm:"not null"`
	UpdatedAt  time.Time
}

func (credentialModel) TableName() string {
	return "credentials"
}

// CredentialRepo stores sealed credentials through gorm.
type CredentialRepo struct {
	db *gorm.DB
}

// New returns a repo over db, migrating the credentials table.
func New(db *gorm.DB) (*CredentialRepo, error) {
	if err := db.AutoMigrate(&credentialModel{}); err != nil {
		return nil, apperrors.Wrapf(err, "migrating credentials table")
	}
	return &CredentialRepo{db: db}, nil
}

func (r *CredentialRepo) Load(ctx context.Context, account string) (*credentials.Sealed, error) {
	var m credentialModel
	err := r.db.WithContext(ctx).Where("account = ?", account).Take(&m).Error
	if apperrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &credentials.Sealed{
		Account:    m.Account,
		IssuedAt:   time.Unix(0, m.IssuedAt).UTC(),
		Ciphertext: m.Ciphertext,
	}, nil
}

// Save inserts or replaces the row in a single statement. The update only
// applies when the incoming issued_at is not older than the stored one.
func (r *CredentialRepo) Save(ctx context.Context, sealed *credentials.Sealed) error {
	m := credentialModel{
		Account:    sealed.Account,
		IssuedAt:   sealed.IssuedAt.UnixNano(),
		Ciphertext: sealed.Ciphertext,
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}},
		DoUpdates: clause.AssignmentColumns([]string{"issued_at", "ciphertext", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "excluded.issued_at >= credentials.issued_at"},
		}},
	}).Create(&m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrStaleWrite
	}
	return nil
}

func (r *CredentialRepo) Remove(ctx context.Context, account string) error {
	result := r.db.WithContext(ctx).Where("account = ?", account).Delete(&credentialModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *CredentialRepo) Accounts(ctx context.Context) ([]string, error) {
	var list []string
	err := r.db.WithContext(ctx).Model(&credentialModel{}).Order("account").Pluck("account", &list).Error
	return list, err
}
