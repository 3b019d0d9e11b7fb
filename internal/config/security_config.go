package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	stateSecretVar        = "STATE_SECRET"
	encryptionKeyVar      = "CREDENTIAL_ENCRYPTION_KEY"
	sessionTimeoutVar     = "SESSION_TIMEOUT"
	sessionSweepVar       = "SESSION_SWEEP_INTERVAL"
	rateLimitEnabledVar   = "RATE_LIMIT_ENABLED"
	rateLimitPerMinuteVar = "RATE_LIMIT_REQUESTS_PER_MINUTE"

	defaultStateSecret = "default_secret_change_in_production"
)

type SecurityConfig interface {
	GetStateSecret() string
	GetCredentialEncryptionKey() ([]byte, error)
	GetSessionTimeout() time.Duration
	GetSessionSweepInterval() time.Duration
	GetEnableRateLimiting() bool
	GetRateLimitPerMinute() int
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetStateSecret() string {
	return GetEnv(stateSecretVar, defaultStateSecret)
}

// GetCredentialEncryptionKey decodes CREDENTIAL_ENCRYPTION_KEY (standard base64, 32 bytes).
func (Security) GetCredentialEncryptionKey() ([]byte, error) {
	raw := GetEnv(encryptionKeyVar, "")
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", encryptionKeyVar)
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64: %w", encryptionKeyVar, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", encryptionKeyVar, len(key))
	}
	return key, nil
}

func (Security) GetSessionTimeout() time.Duration {
	return durationOr(sessionTimeoutVar, time.Hour)
}

func (Security) GetSessionSweepInterval() time.Duration {
	return durationOr(sessionSweepVar, 5*time.Minute)
}

func (Security) GetEnableRateLimiting() bool {
	return viper.GetBool(rateLimitEnabledVar)
}

func (Security) GetRateLimitPerMinute() int {
	if n := viper.GetInt(rateLimitPerMinuteVar); n > 0 {
		return n
	}
	return 60
}
