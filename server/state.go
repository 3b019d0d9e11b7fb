package server

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
)

// NowTimeFunc is the clock used for state signing and flow expiry.
var NowTimeFunc = time.Now

type stateClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// StateSigner issues and verifies the OAuth state parameter: an HMAC-SHA256 JWT
// naming the session and the flow, valid for the authorization code timeout.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	return &StateSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func (s *StateSigner) Sign(sessionID, flowID string) (string, error) {
	now := NowTimeFunc()
	claims := stateClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        flowID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", apperrors.Wrapf(err, "failed to sign state")
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the session and flow ids.
func (s *StateSigner) Verify(state string) (sessionID, flowID string, err error) {
	claims := &stateClaims{}
	_, err = jwt.ParseWithClaims(state, claims, s.verificationKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(NowTimeFunc),
	)
	if err != nil {
		return "", "", apperrors.Wrapf(apperrors.ErrInvalidState, "%v", err)
	}
	if claims.SessionID == "" || claims.ID == "" {
		return "", "", apperrors.Wrapf(apperrors.ErrInvalidState, "state is missing session or flow")
	}
	return claims.SessionID, claims.ID, nil
}

func (s *StateSigner) verificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidState, "unexpected signing method %v", token.Header["alg"])
	}
	return s.secret, nil
}
