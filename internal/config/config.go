// Package config handles loading and validation of the gateway client
// configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all tunables for the Session Manager.
type Config struct {
	// MaxReconnectAttempts caps the reconnect budget per gateway before the
	// session settles into the terminal Error state (spec.md §4.1 I5).
	MaxReconnectAttempts int `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`

	// ReconnectDelayMs is the base delay before the first reconnect attempt.
	ReconnectDelayMs int `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`

	// ReconnectBackoffFactor multiplies ReconnectDelayMs after each failed
	// attempt (exponential backoff). There is no cap on the backed-off
	// delay: spec.md §4.1/§8 I5 fixes the formula as
	// delay = ReconnectDelayMs * ReconnectBackoffFactor^attempts exactly, so
	// a max-delay knob would either go unused or silently violate I5.
	ReconnectBackoffFactor float64 `mapstructure:"reconnect_backoff_factor" yaml:"reconnect_backoff_factor"`

	// KeepAliveIntervalMs is the WebSocket ping interval.
	KeepAliveIntervalMs int `mapstructure:"keep_alive_interval_ms" yaml:"keep_alive_interval_ms"`

	// HandshakeTimeoutMs bounds the initial WebSocket dial.
	HandshakeTimeoutMs int `mapstructure:"handshake_timeout_ms" yaml:"handshake_timeout_ms"`

	// PostOpenLoginDelayMs is the grace period observed between the socket
	// opening and sending POST_LOGIN, matching the gateway's own warm-up
	// window (spec.md §9 Open Question 1). Set to 0 in tests.
	PostOpenLoginDelayMs int `mapstructure:"post_open_login_delay_ms" yaml:"post_open_login_delay_ms"`

	// PostLoginSubscribeDelayMs is the analogous grace period between a
	// successful RTN_LOGIN and sending POST_SUB_CHANGES.
	PostLoginSubscribeDelayMs int `mapstructure:"post_login_subscribe_delay_ms" yaml:"post_login_subscribe_delay_ms"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// ReconnectDelay returns ReconnectDelayMs as a time.Duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// KeepAliveInterval returns KeepAliveIntervalMs as a time.Duration.
func (c *Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.KeepAliveIntervalMs) * time.Millisecond
}

// HandshakeTimeout returns HandshakeTimeoutMs as a time.Duration.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMs) * time.Millisecond
}

// PostOpenLoginDelay returns PostOpenLoginDelayMs as a time.Duration.
func (c *Config) PostOpenLoginDelay() time.Duration {
	return time.Duration(c.PostOpenLoginDelayMs) * time.Millisecond
}

// PostLoginSubscribeDelay returns PostLoginSubscribeDelayMs as a time.Duration.
func (c *Config) PostLoginSubscribeDelay() time.Duration {
	return time.Duration(c.PostLoginSubscribeDelayMs) * time.Millisecond
}

// Load reads configuration from the given file path (optional — missing
// files fall back to defaults and environment overrides) and validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("max_reconnect_attempts", 5)
	v.SetDefault("reconnect_delay_ms", 1000)
	v.SetDefault("reconnect_backoff_factor", 1.5)
	v.SetDefault("keep_alive_interval_ms", 30000)
	v.SetDefault("handshake_timeout_ms", 10000)
	v.SetDefault("post_open_login_delay_ms", 300)
	v.SetDefault("post_login_subscribe_delay_ms", 300)
	v.SetDefault("log_level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	v.SetEnvPrefix("GATEWAYCLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// Validate checks that every tunable is well-formed.
func (c *Config) Validate() error {
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts must be >= 0")
	}
	if c.ReconnectDelayMs <= 0 {
		return fmt.Errorf("reconnect_delay_ms must be > 0")
	}
	if c.ReconnectBackoffFactor < 1 {
		return fmt.Errorf("reconnect_backoff_factor must be >= 1")
	}
	if c.KeepAliveIntervalMs <= 0 {
		return fmt.Errorf("keep_alive_interval_ms must be > 0")
	}
	if c.HandshakeTimeoutMs <= 0 {
		return fmt.Errorf("handshake_timeout_ms must be > 0")
	}
	if c.PostOpenLoginDelayMs < 0 {
		return fmt.Errorf("post_open_login_delay_ms must be >= 0")
	}
	if c.PostLoginSubscribeDelayMs < 0 {
		return fmt.Errorf("post_login_subscribe_delay_ms must be >= 0")
	}
	return nil
}
