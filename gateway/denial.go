package gateway

import (
	"fmt"

	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
)

// Kind classifies a denial.
type Kind string

const (
	NotAuthenticated       Kind = "not_authenticated"       // No bound session; drive the OAuth flow
	AccountDisabled        Kind = "account_disabled"        // Policy denies the account
	CapabilityForbidden    Kind = "capability_forbidden"    // Policy denies the capability for the account
	RateLimited            Kind = "rate_limited"            // Per-account request budget exhausted
	ReauthRequired         Kind = "reauth_required"         // Refresh token rejected; consent again
	TemporarilyUnavailable Kind = "temporarily_unavailable" // Upstream failure; retry the whole request later
	AlreadyBound           Kind = "already_bound"           // Session is bound to another account
)

var kindSentinels = map[Kind]error{
	NotAuthenticated:       apperrors.ErrNotAuthenticated,
	AccountDisabled:        apperrors.ErrAccountDisabled,
	CapabilityForbidden:    apperrors.ErrCapabilityForbidden,
	RateLimited:            apperrors.ErrRateLimited,
	ReauthRequired:         apperrors.ErrReauthRequired,
	TemporarilyUnavailable: apperrors.ErrTemporarilyUnavailable,
	AlreadyBound:           apperrors.ErrAlreadyBound,
}

// Denial is the structured refusal returned by the gateway. It matches the
// corresponding sentinel with errors.Is.
type Denial struct {
	Kind       Kind
	Account    string // empty when no account is known
	Capability string
	Cause      error
}

func (d *Denial) Error() string {
	msg := string(d.Kind)
	if d.Account != "" {
		msg = fmt.Sprintf("%s (account %s)", msg, d.Account)
	}
	if d.Capability != "" {
		msg = fmt.Sprintf("%s: capability %s", msg, d.Capability)
	}
	if d.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, d.Cause)
	}
	return msg
}

func (d *Denial) Unwrap() error {
	return d.Cause
}

func (d *Denial) Is(target error) bool {
	sentinel, ok := kindSentinels[d.Kind]
	return ok && target == sentinel
}

// Retryable reports whether the caller may retry the same request later.
func (d *Denial) Retryable() bool {
	return d.Kind == TemporarilyUnavailable || d.Kind == RateLimited
}

func deny(kind Kind, account, capability string, cause error) *Denial {
	return &Denial{Kind: kind, Account: account, Capability: capability, Cause: cause}
}
