package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	clientIDVar           = "GOOGLE_CLIENT_ID"
	clientSecretVar       = "GOOGLE_CLIENT_SECRET"
	issuerVar             = "OAUTH_ISSUER"
	scopesVar             = "OAUTH_SCOPES"
	tokenSafetyMarginVar  = "TOKEN_SAFETY_MARGIN"
	refreshTimeoutVar     = "REFRESH_TIMEOUT"
	refreshMaxAttemptsVar = "REFRESH_MAX_ATTEMPTS"
	backgroundRefreshVar  = "BACKGROUND_REFRESH_INTERVAL"

	// CallbackPath is where the provider redirects after consent.
	CallbackPath = "/oauth2/callback"
)

// DefaultScopes cover identity plus the Workspace services the outer server exposes.
var DefaultScopes = []string{
	"openid",
	"email",
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/documents",
	"https://www.googleapis.com/auth/spreadsheets",
}

type OAuthConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetIssuer() string
	GetScopes() []string
	GetRedirectURL() string
	GetAuthCodeTimeout() time.Duration
	GetTokenSafetyMargin() time.Duration
	GetRefreshTimeout() time.Duration
	GetRefreshMaxAttempts() int
	GetBackgroundRefreshInterval() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetClientID() string {
	return GetEnv(clientIDVar, "")
}

func (OAuth) GetClientSecret() string {
	return GetEnv(clientSecretVar, "")
}

func (OAuth) GetIssuer() string {
	return GetEnv(issuerVar, "https://accounts.google.com")
}

func (OAuth) GetScopes() []string {
	if scopes := GetList(scopesVar); len(scopes) > 0 {
		return scopes
	}
	return DefaultScopes
}

func (OAuth) GetRedirectURL() string {
	return EnvVars{}.GetBaseURL() + CallbackPath
}

func (OAuth) GetAuthCodeTimeout() time.Duration {
	return 15 * time.Minute
}

func (OAuth) GetTokenSafetyMargin() time.Duration {
	return durationOr(tokenSafetyMarginVar, 60*time.Second)
}

func (OAuth) GetRefreshTimeout() time.Duration {
	return durationOr(refreshTimeoutVar, 10*time.Second)
}

func (OAuth) GetRefreshMaxAttempts() int {
	if n := viper.GetInt(refreshMaxAttemptsVar); n > 0 {
		return n
	}
	return 3
}

func (OAuth) GetBackgroundRefreshInterval() time.Duration {
	return durationOr(backgroundRefreshVar, 15*time.Minute)
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}
