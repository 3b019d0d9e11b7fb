package credentials

import (
	"time"

	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"golang.org/x/oauth2"
)

// Record is the token material held for one account.
type Record struct {
	AccessToken  string    `json:"access_token,omitempty"`  // Short lived bearer token
	RefreshToken string    `json:"refresh_token,omitempty"` // Long lived token, empty once the grant is unusable
	Expiry       time.Time `json:"expiry,omitempty"`        // Access token expiry, always set alongside AccessToken
	IssuedAt     time.Time `json:"issued_at"`               // When this record was produced, used to order writes
}

// Validate checks the structural invariants of a record.
func (r *Record) Validate() error {
	if r == nil {
		return apperrors.Wrapf(apperrors.ErrInvalidRecord, "nil record")
	}
	if r.IssuedAt.IsZero() {
		return apperrors.Wrapf(apperrors.ErrInvalidRecord, "issued_at is required")
	}
	if r.AccessToken != "" && r.Expiry.IsZero() {
		return apperrors.Wrapf(apperrors.ErrInvalidRecord, "access token without expiry")
	}
	if r.AccessToken == "" && !r.Expiry.IsZero() {
		return apperrors.Wrapf(apperrors.ErrInvalidRecord, "expiry without access token")
	}
	return nil
}

// NeedsRefresh reports whether the access token is missing or expires at or
// before now+margin.
func (r *Record) NeedsRefresh(now time.Time, margin time.Duration) bool {
	if r.AccessToken == "" {
		return true
	}
	return !r.Expiry.After(now.Add(margin))
}

// Refreshable reports whether a refresh token is available.
func (r *Record) Refreshable() bool {
	return r.RefreshToken != ""
}

// OAuth2Token converts the record for use with an oauth2 token source.
func (r *Record) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: r.RefreshToken,
		Expiry:       r.Expiry,
	}
}

// FromOAuth2Token builds a record from an upstream token response. A missing
// expiry falls back to defaultLifetime from issuedAt.
func FromOAuth2Token(tok *oauth2.Token, issuedAt time.Time, defaultLifetime time.Duration) *Record {
	expiry := tok.Expiry
	if expiry.IsZero() && tok.AccessToken != "" {
		expiry = issuedAt.Add(defaultLifetime)
	}
	return &Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       expiry,
		IssuedAt:     issuedAt,
	}
}
