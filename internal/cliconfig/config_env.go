package cliconfig

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads a dotenv file into the process environment without
// overriding variables that are already set. An empty path loads ./.env
// when present.
func LoadEnvFile(path string) error {
	if path == "" {
		if !FileExists(".env") {
			return nil
		}
		path = ".env"
	}
	return godotenv.Load(path)
}

// ApplyEnvConfig applies configuration from environment variables (DEVLINK_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("state-dir", os.Getenv("DEVLINK_STATE_DIR"), &cfg.StateDir)
	s.setString("provision-dir", os.Getenv("DEVLINK_PROVISION_DIR"), &cfg.ProvisionDir)
	s.setString("endpoint", os.Getenv("DEVLINK_ENDPOINT"), &cfg.Endpoint)
	s.setString("client-id", os.Getenv("DEVLINK_CLIENT_ID"), &cfg.ClientID)
	s.setString("root-ca", os.Getenv("DEVLINK_ROOT_CA_PATH"), &cfg.RootCAPath)
	s.setString("iface", os.Getenv("DEVLINK_IFACE"), &cfg.Iface)
	s.setString("firmware-version", os.Getenv("DEVLINK_FIRMWARE_VERSION"), &cfg.FirmwareVersion)
	s.setString("iccid", os.Getenv("DEVLINK_ICCID"), &cfg.ICCID)
	s.setString("redis-addr", os.Getenv("DEVLINK_REDIS_ADDR"), &cfg.RedisAddr)
	s.setString("alt-channel", os.Getenv("DEVLINK_ALT_CHANNEL"), &cfg.AltChannel)
	s.setString("log-level", os.Getenv("DEVLINK_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("retry-delay", os.Getenv("DEVLINK_RETRY_DELAY"), &cfg.RetryDelay); err != nil {
		return err
	}
	if err := s.setDuration("keepalive-interval", os.Getenv("DEVLINK_KEEPALIVE_INTERVAL"), &cfg.KeepAliveInterval); err != nil {
		return err
	}
	if err := s.setDuration("watchdog-interval", os.Getenv("DEVLINK_WATCHDOG_INTERVAL"), &cfg.WatchdogInterval); err != nil {
		return err
	}
	if err := s.setDuration("reset-delay", os.Getenv("DEVLINK_RESET_DELAY"), &cfg.ResetDelay); err != nil {
		return err
	}

	if err := s.setIntFromString("queue-capacity", os.Getenv("DEVLINK_QUEUE_CAPACITY"), &cfg.QueueCapacity); err != nil {
		return err
	}
	if err := s.setIntFromString("queue-threshold", os.Getenv("DEVLINK_QUEUE_THRESHOLD"), &cfg.QueueThreshold); err != nil {
		return err
	}
	if err := s.setIntFromString("queue-low-water", os.Getenv("DEVLINK_QUEUE_LOW_WATER"), &cfg.QueueLowWater); err != nil {
		return err
	}
	if err := s.setIntFromString("max-cert-bytes", os.Getenv("DEVLINK_MAX_CERT_BYTES"), &cfg.MaxCertBytes); err != nil {
		return err
	}
	if err := s.setIntFromString("max-key-bytes", os.Getenv("DEVLINK_MAX_KEY_BYTES"), &cfg.MaxKeyBytes); err != nil {
		return err
	}

	s.setBoolFromString("alt-protocol", os.Getenv("DEVLINK_ALT_PROTOCOL"), &cfg.AltProtocol)
	s.setBoolFromString("halt-on-fatal", os.Getenv("DEVLINK_HALT_ON_FATAL"), &cfg.HaltOnFatal)
	s.setBoolFromString("shell", os.Getenv("DEVLINK_SHELL"), &cfg.Shell)

	return nil
}
