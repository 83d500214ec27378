// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Store         StoreConfig        `mapstructure:"store"`
	Listener      ListenerConfig     `mapstructure:"listener"`
	Confirmation  ConfirmationConfig `mapstructure:"confirmation"`
	Remote        RemoteConfig       `mapstructure:"remote"`
	Dedupe        DedupeConfig       `mapstructure:"dedupe"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Server        ServerConfig       `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	Migrate        bool   `mapstructure:"migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// SQLiteConfig points at the terminal-local database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Domain Configuration Sections ---

// Store modes.
const (
	StoreModeRemote   = "remote"
	StoreModeLocal    = "local"
	StoreModeMirrored = "mirrored"
)

// StoreConfig selects which store is authoritative.
type StoreConfig struct {
	Mode string `mapstructure:"mode"`
}

// ListenerConfig holds the channel subscription settings. Durations are
// milliseconds.
type ListenerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Channel        string `mapstructure:"channel"`
	MinBackoff     int    `mapstructure:"min_backoff"`
	MaxBackoff     int    `mapstructure:"max_backoff"`
	PingInterval   int    `mapstructure:"ping_interval"`
	StopTimeout    int    `mapstructure:"stop_timeout"`
	ValidateSchema bool   `mapstructure:"validate_schema"`
}

// ConfirmationConfig describes the terminal running the confirmation workflow.
type ConfirmationConfig struct {
	CodePrefix  string `mapstructure:"code_prefix"`
	Device      string `mapstructure:"device"`
	Area        string `mapstructure:"area"`
	AccessKind  string `mapstructure:"access_kind"`
	Timeout     int    `mapstructure:"timeout"`      // milliseconds, whole attempt
	StepTimeout int    `mapstructure:"step_timeout"` // milliseconds, each fallback write
}

// Remote transports.
const (
	RemoteTransportPostgres = "postgres"
	RemoteTransportHTTP     = "http"
)

// RemoteConfig configures the atomic server-side confirmation routine.
type RemoteConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Transport string `mapstructure:"transport"`
	Function  string `mapstructure:"function"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds
}

// Dedupe backends.
const (
	DedupeBackendMemory = "memory"
	DedupeBackendRedis  = "redis"
)

type DedupeConfig struct {
	Backend   string `mapstructure:"backend"`
	Capacity  int    `mapstructure:"capacity"`
	TTL       int    `mapstructure:"ttl"` // milliseconds
	KeyPrefix string `mapstructure:"key_prefix"`
}

// NotificationConfig holds the optional entry fan-out sinks.
type NotificationConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds the health/metrics/confirm HTTP listener.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}
