package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	portEnvVar        = "PORT"
	appNameVar        = "APP_NAME"
	folderEnvVar      = "FOLDER"
	baseURLVar        = "BASE_URL"
	envVar            = "ENV"
	logLevelVar       = "LOG_LEVEL"
	fileLoggingVar    = "FILE_LOGGING_ENABLED"
	logFilePathVar    = "LOG_FILE_PATH"
	metricsEnabledVar = "METRICS_ENABLED"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8000")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Workspace Gateway")
}

// GetBaseURL returns the externally visible base URL of the gateway (e.g., "https://mcp.example.com").
// The OAuth redirect URI is derived from it.
func (EnvVars) GetBaseURL() string {
	return strings.TrimSuffix(GetEnv(baseURLVar, "http://localhost:8000"), "/")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, "DEV")
}

func (e EnvVars) IsProduction() bool {
	env := strings.ToLower(e.GetEnv())
	return env == "production" || env == "prod"
}

func (EnvVars) GetLogLevel() string {
	return strings.ToLower(GetEnv(logLevelVar, "info"))
}

func (EnvVars) GetFileLoggingEnabled() bool {
	return viper.GetBool(fileLoggingVar)
}

func (EnvVars) GetLogFilePath() string {
	return GetEnv(logFilePathVar, "logs/gateway.log")
}

func (EnvVars) GetMetricsEnabled() bool {
	return viper.GetBool(metricsEnabledVar)
}

func GetEnv(envVar, defaultValue string) string {
	value := viper.GetString(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetList reads a comma separated variable, dropping blank entries.
func GetList(envVar string) []string {
	raw := viper.GetString(envVar)
	if raw == "" {
		return nil
	}
	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
