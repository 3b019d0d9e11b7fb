package errors

import (
	"errors"
	"fmt"
)

// Common error types for the gateway
var (
	// Storage errors
	ErrNotFound      = errors.New("not found")
	ErrStaleWrite    = errors.New("stale write: record is older than the stored one")
	ErrInvalidRecord = errors.New("invalid credential record")
	ErrDecryptFailed = errors.New("credential decryption failed")

	// Token errors
	ErrReauthRequired         = errors.New("reauthentication required")
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")
	ErrInvalidGrant           = errors.New("invalid grant")
	ErrMissingIdentity        = errors.New("token response carries no verified identity")
	ErrClientRejected         = errors.New("token endpoint rejected the OAuth client")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrAlreadyBound    = errors.New("session already bound to a different account")
	ErrInvalidSession  = errors.New("invalid session id")

	// Authorization errors
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrAccountDisabled     = errors.New("account disabled")
	ErrCapabilityForbidden = errors.New("capability forbidden")
	ErrRateLimited         = errors.New("rate limited")

	// OAuth flow errors
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidNonce = errors.New("invalid nonce")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
