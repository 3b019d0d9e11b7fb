package accounts

import (
	"strings"
	"time"
)

// NowTimeFunc is the clock used for account timestamps, replaceable in tests
var NowTimeFunc = time.Now

// Account is an upstream identity that has completed an OAuth grant.
// Accounts are never physically removed, only disabled.
type Account struct {
	Email      string    `json:"email"`                  // Normalised (lower-cased) email address, the account key
	Scopes     []string  `json:"scopes,omitempty"`       // Scopes granted during the most recent consent
	Enabled    bool      `json:"enabled"`                // Mirrors the active policy entry for the account
	CreatedAt  time.Time `json:"created_at"`             // First successful grant
	UpdatedAt  time.Time `json:"updated_at"`             // Last modification of the record
	LastAuthAt time.Time `json:"last_auth_at,omitempty"` // Last completed OAuth callback
}

// NormalizeEmail returns the canonical form used as the account key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
