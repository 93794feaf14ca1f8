package config

import (
	"fmt"
	"time"
)

// Config contains all application settings
type Config struct {
	BindPort      int    `mapstructure:"PORT" yaml:"port"`
	BindHost      string `mapstructure:"HOST" yaml:"host"`
	DatabaseURL   string `mapstructure:"DATABASE_URL" yaml:"database_url"`
	NATSServerURL string `mapstructure:"NATS_URL" yaml:"nats_url"`

	// IdleThreshold is the period without a posture reading after which an
	// active session is marked idle. InactivityTimeout is the harder limit
	// after which the session is ended. Both are checked on heartbeat
	// receipt.
	IdleThreshold     time.Duration `mapstructure:"IDLE_THRESHOLD" yaml:"idle_threshold"`
	InactivityTimeout time.Duration `mapstructure:"INACTIVITY_TIMEOUT" yaml:"inactivity_timeout"`

	// HeartbeatInterval is the period between server-initiated heartbeat
	// frames on an open device connection.
	HeartbeatInterval time.Duration `mapstructure:"HEARTBEAT_INTERVAL" yaml:"heartbeat_interval"`

	// EndSessionOnDisconnect controls whether a disconnect ends the device's
	// active session or leaves it for the inactivity timeout to collect.
	EndSessionOnDisconnect bool `mapstructure:"END_SESSION_ON_DISCONNECT" yaml:"end_session_on_disconnect"`

	// Version
	BuildVersion string `yaml:"-"`
	BuildHash    string `yaml:"-"`
	BuildTime    string `yaml:"-"`
}

// Validate checks the configured thresholds for consistency.
func (c *Config) Validate() error {
	if c.IdleThreshold <= 0 {
		return fmt.Errorf("config: IDLE_THRESHOLD must be positive")
	}
	if c.InactivityTimeout <= 0 {
		return fmt.Errorf("config: INACTIVITY_TIMEOUT must be positive")
	}
	if c.IdleThreshold >= c.InactivityTimeout {
		return fmt.Errorf("config: IDLE_THRESHOLD must be smaller than INACTIVITY_TIMEOUT")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: HEARTBEAT_INTERVAL must be positive")
	}
	return nil
}
