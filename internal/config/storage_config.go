package config

import (
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	credentialBackendVar = "CREDENTIAL_BACKEND"
	databasePathVar      = "DATABASE_PATH"
	redisAddrVar         = "REDIS_ADDR"
	redisPasswordVar     = "REDIS_PASSWORD"
	redisDBVar           = "REDIS_DB"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type StorageConfig interface {
	GetCredentialBackend() string
	GetDatabasePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetCredentialBackend() string {
	return strings.ToLower(GetEnv(credentialBackendVar, BackendSQLite))
}

func (Storage) GetDatabasePath() string {
	return GetEnv(databasePathVar, filepath.Join(EnvVars{}.GetDataFolder(), "gateway.db"))
}

func (Storage) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "localhost:6379")
}

func (Storage) GetRedisPassword() string {
	return GetEnv(redisPasswordVar, "")
}

func (Storage) GetRedisDB() int {
	return viper.GetInt(redisDBVar)
}
