// internal/workers/entries/listen-entries/config.go
package listenentries

import (
	"time"

	"frontdesk/internal/common/config"
)

type Config struct {
	Channel        string
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	PingInterval   time.Duration
	StopTimeout    time.Duration
	ValidateSchema bool
}

func LoadConfig(cfg config.ListenerConfig) *Config {
	return &Config{
		Channel:        cfg.Channel,
		MinBackoff:     config.GetDuration(cfg.MinBackoff),
		MaxBackoff:     config.GetDuration(cfg.MaxBackoff),
		PingInterval:   config.GetDuration(cfg.PingInterval),
		StopTimeout:    config.GetDuration(cfg.StopTimeout),
		ValidateSchema: cfg.ValidateSchema,
	}
}

// DedupeConfig sizes the consumer-side seen set.
type DedupeConfig struct {
	Capacity  int
	TTL       time.Duration
	KeyPrefix string
}

func LoadDedupeConfig(cfg config.DedupeConfig) *DedupeConfig {
	return &DedupeConfig{
		Capacity:  cfg.Capacity,
		TTL:       config.GetDuration(cfg.TTL),
		KeyPrefix: cfg.KeyPrefix,
	}
}
