package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	StateDir          string `toml:"state_dir"`
	ProvisionDir      string `toml:"provision_dir"`
	Endpoint          string `toml:"endpoint"`
	ClientID          string `toml:"client_id"`
	RootCAPath        string `toml:"root_ca_path"`
	Iface             string `toml:"iface"`
	FirmwareVersion   string `toml:"firmware_version"`
	ICCID             string `toml:"iccid"`
	RetryDelay        string `toml:"retry_delay"`
	KeepAliveInterval string `toml:"keepalive_interval"`
	WatchdogInterval  string `toml:"watchdog_interval"`
	ResetDelay        string `toml:"reset_delay"`
	QueueCapacity     int    `toml:"queue_capacity"`
	QueueThreshold    int    `toml:"queue_threshold"`
	QueueLowWater     int    `toml:"queue_low_water"`
	MaxCertBytes      int    `toml:"max_cert_bytes"`
	MaxKeyBytes       int    `toml:"max_key_bytes"`
	AltProtocol       *bool  `toml:"alt_protocol"`
	RedisAddr         string `toml:"redis_addr"`
	AltChannel        string `toml:"alt_channel"`
	HaltOnFatal       *bool  `toml:"halt_on_fatal"`
	Shell             *bool  `toml:"shell"`
	LogLevel          string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.devlink/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".devlink", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("provision-dir", fc.ProvisionDir, &cfg.ProvisionDir)
	s.setString("endpoint", fc.Endpoint, &cfg.Endpoint)
	s.setString("client-id", fc.ClientID, &cfg.ClientID)
	s.setString("root-ca", fc.RootCAPath, &cfg.RootCAPath)
	s.setString("iface", fc.Iface, &cfg.Iface)
	s.setString("firmware-version", fc.FirmwareVersion, &cfg.FirmwareVersion)
	s.setString("iccid", fc.ICCID, &cfg.ICCID)
	s.setString("redis-addr", fc.RedisAddr, &cfg.RedisAddr)
	s.setString("alt-channel", fc.AltChannel, &cfg.AltChannel)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("retry-delay", fc.RetryDelay, &cfg.RetryDelay); err != nil {
		return err
	}
	if err := s.setDuration("keepalive-interval", fc.KeepAliveInterval, &cfg.KeepAliveInterval); err != nil {
		return err
	}
	if err := s.setDuration("watchdog-interval", fc.WatchdogInterval, &cfg.WatchdogInterval); err != nil {
		return err
	}
	if err := s.setDuration("reset-delay", fc.ResetDelay, &cfg.ResetDelay); err != nil {
		return err
	}

	s.setInt("queue-capacity", fc.QueueCapacity, &cfg.QueueCapacity)
	s.setInt("queue-threshold", fc.QueueThreshold, &cfg.QueueThreshold)
	s.setInt("queue-low-water", fc.QueueLowWater, &cfg.QueueLowWater)
	s.setInt("max-cert-bytes", fc.MaxCertBytes, &cfg.MaxCertBytes)
	s.setInt("max-key-bytes", fc.MaxKeyBytes, &cfg.MaxKeyBytes)

	s.setBool("alt-protocol", fc.AltProtocol, &cfg.AltProtocol)
	s.setBool("halt-on-fatal", fc.HaltOnFatal, &cfg.HaltOnFatal)
	s.setBool("shell", fc.Shell, &cfg.Shell)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
