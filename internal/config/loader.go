package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"git.sr.ht/~jakintosh/tollgate/internal/iap"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envBindings maps each setting to the environment variables that can set
// it, in order of precedence.
var envBindings = map[string][]string{
	"server.port": {"PORT"},

	"admin.password":      {"ADMIN_PASSWORD"},
	"admin.password_hash": {"ADMIN_PASSWORD_HASH"},

	"jwt.secret":              {"JWT_SECRET"},
	"jwt.algorithm":           {"JWT_ALGORITHM"},
	"jwt.access_minutes":      {"ACCESS_TOKEN_EXPIRE_MINUTES"},
	"jwt.user_access_minutes": {"USER_ACCESS_TOKEN_EXPIRE_MINUTES"},
	"jwt.user_max_minutes":    {"USER_ACCESS_TOKEN_MAX_MINUTES"},

	"catalog.path": {"IAP_CATALOG_PATH"},

	"apple.key_id":           {"APPLE_API_KEY_ID"},
	"apple.issuer_id":        {"APPLE_API_ISSUER_ID"},
	"apple.private_key":      {"APPLE_API_PRIVATE_KEY"},
	"apple.bundle_id":        {"APPLE_BUNDLE_ID"},
	"apple.environment":      {"APPLE_API_ENV", "APPLE_RECEIPT_ENV"},
	"apple.app_apple_id":     {"APPLE_APP_APPLE_ID"},
	"apple.root_cert_paths":  {"APPLE_ROOT_CERT_PATHS"},
	"apple.root_cert_base64": {"APPLE_ROOT_CERT_BASE64"},

	"openai.api_key":           {"OPENAI_API_KEY"},
	"openai.model":             {"OPENAI_MODEL"},
	"openai.base_url":          {"OPENAI_BASE_URL"},
	"openai.temperature":       {"OPENAI_TEMPERATURE"},
	"openai.timeout_seconds":   {"OPENAI_TIMEOUT_SECONDS"},
	"openai.max_output_tokens": {"OPENAI_MAX_OUTPUT_TOKENS"},

	"usage.backend":        {"USAGE_BACKEND"},
	"usage.sqlite_path":    {"SQLITE_PATH"},
	"usage.postgres_dsn":   {"POSTGRES_DSN"},
	"usage.redis.address":  {"REDIS_ADDRESS"},
	"usage.redis.password": {"REDIS_PASSWORD"},
	"usage.redis.db":       {"REDIS_DB"},

	"logging.level":  {"LOG_LEVEL"},
	"logging.format": {"LOG_FORMAT"},
}

// Load reads .env (when present) into the process environment, then
// layers environment variables over the YAML file at path. An empty path
// looks for tollgate.yaml in the working directory and tolerates its
// absence.
func Load(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tollgate")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("couldn't bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	// existing variables win over the file
	_ = godotenv.Load(".env")
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}

	if cfg.JWT.Algorithm == "" {
		cfg.JWT.Algorithm = "HS256"
	}
	if cfg.JWT.AccessMinutes == 0 {
		cfg.JWT.AccessMinutes = 60
	}

	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = "products.json"
	}

	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4.1-mini"
	}
	if cfg.OpenAI.Temperature == 0 {
		cfg.OpenAI.Temperature = 0.7
	}
	if cfg.OpenAI.TimeoutSeconds == 0 {
		cfg.OpenAI.TimeoutSeconds = 180
	}

	cfg.Usage.Backend = strings.ToLower(strings.TrimSpace(cfg.Usage.Backend))
	if cfg.Usage.Backend == "" {
		cfg.Usage.Backend = BackendMemory
	}
	if cfg.Usage.SQLitePath == "" {
		cfg.Usage.SQLitePath = "tollgate.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return fmt.Errorf("%w: JWT_SECRET is required", ErrConfiguration)
	}
	switch strings.ToUpper(cfg.JWT.Algorithm) {
	case "HS256", "HS384", "HS512":
		cfg.JWT.Algorithm = strings.ToUpper(cfg.JWT.Algorithm)
	default:
		return fmt.Errorf("%w: unsupported JWT_ALGORITHM %q", ErrConfiguration, cfg.JWT.Algorithm)
	}
	if cfg.JWT.AccessMinutes < 0 {
		return fmt.Errorf("%w: ACCESS_TOKEN_EXPIRE_MINUTES must be positive", ErrConfiguration)
	}

	if cfg.Admin.Password == "" && strings.TrimSpace(cfg.Admin.PasswordHash) == "" {
		return fmt.Errorf("%w: ADMIN_PASSWORD or ADMIN_PASSWORD_HASH is required", ErrConfiguration)
	}

	if _, err := iap.ParseEnvironment(cfg.Apple.Environment); err != nil {
		return fmt.Errorf("%w: APPLE_API_ENV: %v", ErrConfiguration, err)
	}

	switch cfg.Usage.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if cfg.Usage.PostgresDSN == "" {
			return fmt.Errorf("%w: POSTGRES_DSN is required for the postgres backend", ErrConfiguration)
		}
	case BackendRedis:
		if cfg.Usage.Redis.Address == "" {
			return fmt.Errorf("%w: REDIS_ADDRESS is required for the redis backend", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown USAGE_BACKEND %q", ErrConfiguration, cfg.Usage.Backend)
	}
	return nil
}
