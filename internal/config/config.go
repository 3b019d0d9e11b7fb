package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
	PolicyConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetDataFolder() string
	GetEnv() string
	IsProduction() bool
	GetLogLevel() string
	GetFileLoggingEnabled() bool
	GetLogFilePath() string
	GetMetricsEnabled() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Security
	Policy
	Storage
}

var loadOnce sync.Once

// New loads the optional .env file once and returns a Config whose getters read the
// process environment on every call.
func New() Config {
	loadOnce.Do(load)
	return mainConfig{}
}

func load() {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault(portEnvVar, "8000")
	viper.SetDefault(appNameVar, "Workspace Gateway")
	viper.SetDefault(baseURLVar, "http://localhost:8000")
	viper.SetDefault(folderEnvVar, "./data")
	viper.SetDefault(envVar, "DEV")
	viper.SetDefault(logLevelVar, "info")
	viper.SetDefault(fileLoggingVar, false)
	viper.SetDefault(logFilePathVar, "logs/gateway.log")
	viper.SetDefault(metricsEnabledVar, true)

	viper.SetDefault(issuerVar, "https://accounts.google.com")
	viper.SetDefault(tokenSafetyMarginVar, 60*time.Second)
	viper.SetDefault(refreshTimeoutVar, 10*time.Second)
	viper.SetDefault(refreshMaxAttemptsVar, 3)
	viper.SetDefault(backgroundRefreshVar, 15*time.Minute)

	viper.SetDefault(sessionTimeoutVar, time.Hour)
	viper.SetDefault(sessionSweepVar, 5*time.Minute)
	viper.SetDefault(rateLimitEnabledVar, true)
	viper.SetDefault(rateLimitPerMinuteVar, 60)

	viper.SetDefault(multiAccountVar, true)

	viper.SetDefault(credentialBackendVar, "sqlite")
	viper.SetDefault(redisAddrVar, "localhost:6379")
	viper.SetDefault(redisDBVar, 0)
}
