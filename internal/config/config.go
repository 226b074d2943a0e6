// Package config loads the server settings from the environment, an
// optional .env file and an optional tollgate.yaml.
package config

import (
	"errors"
	"time"
)

var ErrConfiguration = errors.New("invalid configuration")

// Usage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Admin   AdminConfig   `mapstructure:"admin"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Apple   AppleConfig   `mapstructure:"apple"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Usage   UsageConfig   `mapstructure:"usage"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type AdminConfig struct {
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"`
}

// JWTConfig holds the signing settings and token lifetimes in minutes.
// Optional lifetimes are nil when unset.
type JWTConfig struct {
	Secret             string `mapstructure:"secret"`
	Algorithm          string `mapstructure:"algorithm"`
	AccessMinutes      int    `mapstructure:"access_minutes"`
	UserAccessMinutes  *int   `mapstructure:"user_access_minutes"`
	UserMaximumMinutes *int   `mapstructure:"user_max_minutes"`
}

// DefaultLifetime is the lifetime of admin tokens and of user tokens
// without a better source.
func (j JWTConfig) DefaultLifetime() time.Duration {
	return minutes(&j.AccessMinutes)
}

func (j JWTConfig) UserLifetime() time.Duration {
	return minutes(j.UserAccessMinutes)
}

func (j JWTConfig) MaxUserLifetime() time.Duration {
	return minutes(j.UserMaximumMinutes)
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

type AppleConfig struct {
	KeyID          string `mapstructure:"key_id"`
	IssuerID       string `mapstructure:"issuer_id"`
	PrivateKey     string `mapstructure:"private_key"`
	BundleID       string `mapstructure:"bundle_id"`
	Environment    string `mapstructure:"environment"`
	AppAppleID     int64  `mapstructure:"app_apple_id"`
	RootCertPaths  string `mapstructure:"root_cert_paths"`
	RootCertBase64 string `mapstructure:"root_cert_base64"`
}

// Configured reports whether any App Store credential was provided.
func (a AppleConfig) Configured() bool {
	return a.KeyID != "" || a.IssuerID != "" || a.PrivateKey != "" || a.BundleID != ""
}

type OpenAIConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	BaseURL         string  `mapstructure:"base_url"`
	Temperature     float64 `mapstructure:"temperature"`
	TimeoutSeconds  float64 `mapstructure:"timeout_seconds"`
	MaxOutputTokens *int    `mapstructure:"max_output_tokens"`
}

func (o OpenAIConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds * float64(time.Second))
}

type UsageConfig struct {
	Backend     string      `mapstructure:"backend"`
	SQLitePath  string      `mapstructure:"sqlite_path"`
	PostgresDSN string      `mapstructure:"postgres_dsn"`
	Redis       RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func minutes(m *int) time.Duration {
	if m == nil || *m <= 0 {
		return 0
	}
	return time.Duration(*m) * time.Minute
}
