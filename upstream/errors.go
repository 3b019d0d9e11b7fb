package upstream

import (
	"context"
	"net"
	"net/http"

	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"golang.org/x/oauth2"
)

// Only a rejected grant ends the account's refresh token. Client-level errors
// point at the gateway's own registration and leave stored grants alone.
const revokedGrantCode = "invalid_grant"

var clientErrorCodes = map[string]bool{
	"invalid_client":         true,
	"unauthorized_client":    true,
	"unsupported_grant_type": true,
	"invalid_request":        true,
}

// classifyRefreshError maps a token endpoint failure onto ErrReauthRequired,
// ErrClientRejected or ErrTemporarilyUnavailable.
func classifyRefreshError(err error) error {
	if err == nil {
		return nil
	}

	var re *oauth2.RetrieveError
	if apperrors.As(err, &re) {
		if re.ErrorCode == revokedGrantCode {
			return apperrors.Wrapf(apperrors.ErrReauthRequired, "token endpoint rejected refresh (%s): %v", re.ErrorCode, err)
		}
		if clientErrorCodes[re.ErrorCode] {
			return apperrors.Wrapf(apperrors.ErrClientRejected, "token endpoint rejected refresh (%s): %v", re.ErrorCode, err)
		}
		if re.Response != nil {
			status := re.Response.StatusCode
			if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
				return apperrors.Wrapf(apperrors.ErrTemporarilyUnavailable, "token endpoint returned %d: %v", status, err)
			}
			if status == http.StatusBadRequest || status == http.StatusUnauthorized {
				return apperrors.Wrapf(apperrors.ErrClientRejected, "token endpoint returned %d: %v", status, err)
			}
		}
		return apperrors.Wrapf(apperrors.ErrTemporarilyUnavailable, "token endpoint error: %v", err)
	}

	var netErr net.Error
	if apperrors.Is(err, context.DeadlineExceeded) || apperrors.Is(err, context.Canceled) || apperrors.As(err, &netErr) {
		return apperrors.Wrapf(apperrors.ErrTemporarilyUnavailable, "token endpoint unreachable: %v", err)
	}
	return apperrors.Wrapf(apperrors.ErrTemporarilyUnavailable, "refresh failed: %v", err)
}

// classifyExchangeError maps a code exchange failure. A rejected code is
// ErrInvalidGrant; anything else is transient.
func classifyExchangeError(err error) error {
	var re *oauth2.RetrieveError
	if apperrors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
		return apperrors.Wrapf(apperrors.ErrInvalidGrant, "code exchange rejected: %v", err)
	}
	return apperrors.Wrapf(apperrors.ErrTemporarilyUnavailable, "code exchange failed: %v", err)
}
