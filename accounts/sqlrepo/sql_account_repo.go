package sqlrepo

import (
	"context"
	"strings"
	"time"

	"github.com/jrsteele09/go-workspace-gateway/accounts"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ accounts.Repo = (*AccountRepo)(nil)

// accountModel is the accounts table row
type accountModel struct {
	Email      string `gorm:"primaryKey;size:320"`
	Scopes     string // space separated, as in an OAuth scope parameter
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastAuthAt time.Time
}

func (accountModel) TableName() string {
	return "accounts"
}

// AccountRepo stores accounts in a relational database through gorm.
type AccountRepo struct {
	db *gorm.DB
}

// New returns a repo over db, migrating the accounts table.
func New(db *gorm.DB) (*AccountRepo, error) {
	if err := db.AutoMigrate(&accountModel{}); err != nil {
		return nil, apperrors.Wrapf(err, "migrating accounts table")
	}
	return &AccountRepo{db: db}, nil
}

func (r *AccountRepo) Upsert(ctx context.Context, account *accounts.Account) error {
	m := toModel(account)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&m).Error
}

func (r *AccountRepo) Get(ctx context.Context, email string) (*accounts.Account, error) {
	var m accountModel
	err := r.db.WithContext(ctx).Where("email = ?", email).Take(&m).Error
	if apperrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromModel(m), nil
}

func (r *AccountRepo) SetEnabled(ctx context.Context, email string, enabled bool) error {
	result := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("email = ?", email).
		Updates(map[string]any{"enabled": enabled, "updated_at": accounts.NowTimeFunc()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *AccountRepo) List(ctx context.Context) ([]*accounts.Account, error) {
	var rows []accountModel
	if err := r.db.WithContext(ctx).Order("email").Find(&rows).Error; err != nil {
		return nil, err
	}
	list := make([]*accounts.Account, 0, len(rows))
	for _, m := range rows {
		list = append(list, fromModel(m))
	}
	return list, nil
}

func toModel(a *accounts.Account) accountModel {
	return accountModel{
		Email:      a.Email,
		Scopes:     strings.Join(a.Scopes, " "),
		Enabled:    a.Enabled,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
		LastAuthAt: a.LastAuthAt,
	}
}

func fromModel(m accountModel) *accounts.Account {
	return &accounts.Account{
		Email:      m.Email,
		Scopes:     strings.Fields(m.Scopes),
		Enabled:    m.Enabled,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		LastAuthAt: m.LastAuthAt,
	}
}
