// internal/workers/payments/confirm-cash-payment/config.go
package confirmcashpayment

import (
	"time"

	"frontdesk/internal/common/config"
	"frontdesk/internal/common/rpc"
)

type Config struct {
	CodePrefix  string
	Terminal    rpc.Terminal
	Timeout     time.Duration // whole attempt, lookups and remote call
	StepTimeout time.Duration // each fallback write
}

func LoadConfig(cfg config.ConfirmationConfig) *Config {
	return &Config{
		CodePrefix: cfg.CodePrefix,
		Terminal: rpc.Terminal{
			Device:     cfg.Device,
			Area:       cfg.Area,
			AccessKind: cfg.AccessKind,
		},
		Timeout:     config.GetDuration(cfg.Timeout),
		StepTimeout: config.GetDuration(cfg.StepTimeout),
	}
}
