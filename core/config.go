package core

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Dispatch    DispatchConfig `koanf:"dispatch" mapstructure:"dispatch"`
	Retry       RetryConfig    `koanf:"retry" mapstructure:"retry"`
	Inbound     InboundConfig  `koanf:"inbound" mapstructure:"inbound"`
}

type DispatchConfig struct {
	Timeout          time.Duration `koanf:"timeout" mapstructure:"timeout"`
	UserAgent        string        `koanf:"user_agent" mapstructure:"user_agent"`
	MaxResponseBytes int           `koanf:"max_response_bytes" mapstructure:"max_response_bytes"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	BatchSize   int           `koanf:"batch_size" mapstructure:"batch_size"`
	ClaimLease  time.Duration `koanf:"claim_lease" mapstructure:"claim_lease"`
}

type InboundConfig struct {
	MaxRetries       int           `koanf:"max_retries" mapstructure:"max_retries"`
	BatchSize        int           `koanf:"batch_size" mapstructure:"batch_size"`
	FreshnessWindow  time.Duration `koanf:"freshness_window" mapstructure:"freshness_window"`
	SuccessRetention time.Duration `koanf:"success_retention" mapstructure:"success_retention"`
}

const (
	defaultDispatchTimeout  = 30 * time.Second
	defaultMaxResponseBytes = 2048
)

func DefaultConfig() Config {
	return Config{
		ServiceName: "webhooks",
		Dispatch: DispatchConfig{
			Timeout:          defaultDispatchTimeout,
			UserAgent:        "Koya-Webhooks/1.0",
			MaxResponseBytes: defaultMaxResponseBytes,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BatchSize:   50,
			ClaimLease:  time.Minute,
		},
		Inbound: InboundConfig{
			MaxRetries:       5,
			BatchSize:        50,
			FreshnessWindow:  5 * time.Minute,
			SuccessRetention: 7 * 24 * time.Hour,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Dispatch.Timeout < 0 {
		return fmt.Errorf("core: dispatch timeout must be >= 0")
	}
	if c.Dispatch.MaxResponseBytes < 0 {
		return fmt.Errorf("core: dispatch max_response_bytes must be >= 0")
	}
	if c.Retry.MaxAttempts < 0 || c.Inbound.MaxRetries < 0 {
		return fmt.Errorf("core: retry bounds must be >= 0")
	}
	if c.Retry.BatchSize < 0 || c.Inbound.BatchSize < 0 {
		return fmt.Errorf("core: batch sizes must be >= 0")
	}
	return nil
}
