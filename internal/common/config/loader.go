// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top
// and lets environment variables override any key (database.postgres.host is
// DATABASE_POSTGRES_HOST).
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from conventional env names when the
// file left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Remote.APIKey == "" {
		cfg.Remote.APIKey = os.Getenv("REMOTE_API_KEY")
	}
	if cfg.Database.Redis.Password == "" {
		cfg.Database.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "frontdesk"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = "./data/frontdesk.db"
	}

	if cfg.Store.Mode == "" {
		cfg.Store.Mode = StoreModeRemote
	}

	if cfg.Listener.Channel == "" {
		cfg.Listener.Channel = "entry_events"
	}
	if cfg.Listener.MinBackoff == 0 {
		cfg.Listener.MinBackoff = 500
	}
	if cfg.Listener.MaxBackoff == 0 {
		cfg.Listener.MaxBackoff = 30000
	}
	if cfg.Listener.PingInterval == 0 {
		cfg.Listener.PingInterval = 60000
	}
	if cfg.Listener.StopTimeout == 0 {
		cfg.Listener.StopTimeout = 5000
	}

	if cfg.Confirmation.CodePrefix == "" {
		cfg.Confirmation.CodePrefix = "CASH"
	}
	if cfg.Confirmation.AccessKind == "" {
		cfg.Confirmation.AccessKind = "cash_payment"
	}
	if cfg.Confirmation.Area == "" {
		cfg.Confirmation.Area = "front_desk"
	}
	if cfg.Confirmation.Device == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Confirmation.Device = host
		}
	}
	if cfg.Confirmation.Timeout == 0 {
		cfg.Confirmation.Timeout = 30000
	}
	if cfg.Confirmation.StepTimeout == 0 {
		cfg.Confirmation.StepTimeout = 10000
	}

	if cfg.Remote.Transport == "" {
		cfg.Remote.Transport = RemoteTransportPostgres
	}
	if cfg.Remote.Function == "" {
		cfg.Remote.Function = "confirm_cash_payment"
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 5000
	}

	if cfg.Dedupe.Backend == "" {
		cfg.Dedupe.Backend = DedupeBackendMemory
	}
	if cfg.Dedupe.Capacity == 0 {
		cfg.Dedupe.Capacity = 4096
	}
	if cfg.Dedupe.TTL == 0 {
		cfg.Dedupe.TTL = 24 * 60 * 60 * 1000
	}
	if cfg.Dedupe.KeyPrefix == "" {
		cfg.Dedupe.KeyPrefix = "frontdesk:entry:"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	switch cfg.Store.Mode {
	case StoreModeRemote, StoreModeMirrored:
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required for store mode %q", cfg.Store.Mode)
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case StoreModeLocal:
	default:
		return fmt.Errorf("store.mode must be one of remote, local, mirrored (got %q)", cfg.Store.Mode)
	}

	if cfg.Listener.Enabled && cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("listener requires database.postgres.host")
	}
	if cfg.Listener.MaxBackoff < cfg.Listener.MinBackoff {
		return fmt.Errorf("listener.max_backoff must be >= listener.min_backoff")
	}

	if cfg.Remote.Enabled {
		switch cfg.Remote.Transport {
		case RemoteTransportPostgres:
			if cfg.Database.Postgres.Host == "" {
				return fmt.Errorf("remote transport postgres requires database.postgres.host")
			}
		case RemoteTransportHTTP:
			if cfg.Remote.BaseURL == "" {
				return fmt.Errorf("remote.base_url is required for the http transport")
			}
		default:
			return fmt.Errorf("remote.transport must be postgres or http (got %q)", cfg.Remote.Transport)
		}
	}

	switch cfg.Dedupe.Backend {
	case DedupeBackendMemory:
	case DedupeBackendRedis:
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis dedupe backend")
		}
	default:
		return fmt.Errorf("dedupe.backend must be memory or redis (got %q)", cfg.Dedupe.Backend)
	}

	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required when sns is enabled")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
