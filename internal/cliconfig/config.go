package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Defaults for the orchestrator.
const (
	DefaultRetryDelay        = 30 * time.Second
	DefaultKeepAliveInterval = 90 * time.Second
	DefaultWatchdogInterval  = 5 * time.Second
	DefaultResetDelay        = 5 * time.Second
	DefaultQueueCapacity     = 64
	DefaultQueueThreshold    = 48
	DefaultQueueLowWater     = 16
	DefaultMaxCredBytes      = 2048
	DefaultAltChannel        = "devlink:telemetry"
)

// Config holds CLI configuration for devlink.
type Config struct {
	StateDir     string
	ProvisionDir string

	Endpoint   string
	ClientID   string
	RootCAPath string

	Iface           string
	FirmwareVersion string
	ICCID           string

	RetryDelay        time.Duration
	KeepAliveInterval time.Duration
	WatchdogInterval  time.Duration
	ResetDelay        time.Duration

	QueueCapacity  int
	QueueThreshold int
	QueueLowWater  int

	MaxCertBytes int
	MaxKeyBytes  int

	AltProtocol bool
	RedisAddr   string
	AltChannel  string

	HaltOnFatal bool
	Shell       bool
	LogLevel    string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		RetryDelay:        DefaultRetryDelay,
		KeepAliveInterval: DefaultKeepAliveInterval,
		WatchdogInterval:  DefaultWatchdogInterval,
		ResetDelay:        DefaultResetDelay,
		QueueCapacity:     DefaultQueueCapacity,
		QueueThreshold:    DefaultQueueThreshold,
		QueueLowWater:     DefaultQueueLowWater,
		MaxCertBytes:      DefaultMaxCredBytes,
		MaxKeyBytes:       DefaultMaxCredBytes,
		AltChannel:        DefaultAltChannel,
		LogLevel:          "info",
	}
}

// DefaultStateDir returns ~/.devlink/state, or a relative fallback when the
// home directory is unknown.
func DefaultStateDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".devlink", "state")
	}
	return ".devlink-state"
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir()
	}
	if c.ProvisionDir == "" {
		c.ProvisionDir = filepath.Join(c.StateDir, "provision")
	}

	if c.AltProtocol {
		if c.RedisAddr == "" {
			return fmt.Errorf("redis-addr is required with alt-protocol")
		}
	} else if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}

	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive")
	}
	if c.KeepAliveInterval <= 0 {
		return fmt.Errorf("keep-alive interval must be positive")
	}
	if c.WatchdogInterval <= 0 {
		return fmt.Errorf("watchdog interval must be positive")
	}
	if c.ResetDelay < 0 {
		return fmt.Errorf("reset delay must not be negative")
	}

	if c.QueueLowWater <= 0 || c.QueueLowWater >= c.QueueThreshold || c.QueueThreshold >= c.QueueCapacity {
		return fmt.Errorf("queue limits must satisfy 0 < low-water (%d) < threshold (%d) < capacity (%d)",
			c.QueueLowWater, c.QueueThreshold, c.QueueCapacity)
	}
	if c.MaxCertBytes <= 0 || c.MaxKeyBytes <= 0 {
		return fmt.Errorf("credential size limits must be positive")
	}

	if c.AltChannel == "" {
		c.AltChannel = DefaultAltChannel
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
