package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bft-labs/devlink/internal/adapters/fs"
	"github.com/bft-labs/devlink/internal/cliconfig"
	"github.com/bft-labs/devlink/internal/ports"
	"github.com/bft-labs/devlink/internal/shell"
	"github.com/bft-labs/devlink/pkg/devlink"
	"github.com/bft-labs/devlink/pkg/log"
	"github.com/bft-labs/devlink/plugins/provisioning"
)

const helpDescription = `
Keep a field device connected: commission it, wait for the network, hold an
authenticated cloud session and stream sensor samples and keep-alives.

Highlights:
  - Commission over the console (--shell) or by dropping cert.pem/key.pem
    into the provisioning directory.
  - Recovers from network loss, session drops and decommissioning.
  - Bounded event queue with a watchdog that sheds sensor samples first.
  - Configure via file, .env, DEVLINK_* environment or flags.
`

var exampleUsage = strings.TrimSpace(`
  devlink --endpoint wss://broker.example.com/mqtt --iface wwan0 --shell
  devlink --config /etc/devlink/config.toml
  devlink status --state-dir /var/lib/devlink
`)

// Exit codes asking the supervisor to restart the process.
const (
	exitReset      = 75
	exitBootloader = 76
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func resetExitCode(mode ports.ResetMode) int {
	if mode == ports.ResetBootloader {
		return exitBootloader
	}
	return exitReset
}

// configLoader resolves configuration: defaults, TOML file, .env file,
// DEVLINK_* environment, then explicitly set flags.
type configLoader struct {
	cfg     cliconfig.Config
	cfgPath string
	envFile string
}

func (l *configLoader) load(cmd *cobra.Command) error {
	cfgFile := l.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&l.cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.LoadEnvFile(l.envFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	if err := cliconfig.ApplyEnvConfig(&l.cfg, changed); err != nil {
		return err
	}
	return nil
}

func (l *configLoader) addFileFlags(fs *pflag.FlagSet) {
	fs.StringVar(&l.cfgPath, "config", "", "path to config file (default: $HOME/.devlink/config.toml)")
	fs.StringVar(&l.envFile, "env-file", "", "dotenv file with DEVLINK_* variables (default: ./.env when present)")
	fs.StringVar(&l.cfg.StateDir, "state-dir", l.cfg.StateDir, "state directory for credentials.db and status.json (default: $HOME/.devlink/state)")
}

func main() {
	loader := &configLoader{cfg: cliconfig.DefaultConfig()}
	cfg := &loader.cfg

	root := &cobra.Command{
		Use:     "devlink",
		Short:   "Device connectivity lifecycle orchestrator",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loader.load(cmd); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(*cfg)
		},
	}

	loader.addFileFlags(root.PersistentFlags())

	f := root.Flags()
	f.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "cloud endpoint host or ws(s):// URL")
	f.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "client id (default: generated devlink-<uuid>, persisted)")
	f.StringVar(&cfg.RootCAPath, "root-ca", cfg.RootCAPath, "PEM bundle trusted for the server certificate")
	f.StringVar(&cfg.ProvisionDir, "provision-dir", cfg.ProvisionDir, "directory watched for cert.pem, key.pem and decommission (default: <state-dir>/provision)")
	f.StringVar(&cfg.Iface, "iface", cfg.Iface, "network interface carrying the uplink (default: any)")
	f.StringVar(&cfg.FirmwareVersion, "firmware-version", cfg.FirmwareVersion, "firmware version reported in device metadata")
	f.StringVar(&cfg.ICCID, "iccid", cfg.ICCID, "SIM ICCID reported in device metadata")

	f.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "delay before retrying resolve, connect or alternate init")
	f.DurationVar(&cfg.KeepAliveInterval, "keepalive-interval", cfg.KeepAliveInterval, "keep-alive period while streaming")
	f.DurationVar(&cfg.WatchdogInterval, "watchdog-interval", cfg.WatchdogInterval, "queue depth sampling period")
	f.DurationVar(&cfg.ResetDelay, "reset-delay", cfg.ResetDelay, "delay between a fatal error and the reset")

	f.IntVar(&cfg.QueueCapacity, "queue-capacity", cfg.QueueCapacity, "event queue capacity")
	f.IntVar(&cfg.QueueThreshold, "queue-threshold", cfg.QueueThreshold, "depth above which the watchdog flushes")
	f.IntVar(&cfg.QueueLowWater, "queue-low-water", cfg.QueueLowWater, "depth the watchdog flushes down to")
	f.IntVar(&cfg.MaxCertBytes, "max-cert-bytes", cfg.MaxCertBytes, "maximum certificate size")
	f.IntVar(&cfg.MaxKeyBytes, "max-key-bytes", cfg.MaxKeyBytes, "maximum private key size")

	f.BoolVar(&cfg.AltProtocol, "alt-protocol", cfg.AltProtocol, "publish telemetry over Redis instead of the cloud session")
	f.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address or redis:// URL for --alt-protocol")
	f.StringVar(&cfg.AltChannel, "alt-channel", cfg.AltChannel, "Redis channel for --alt-protocol")

	f.BoolVar(&cfg.HaltOnFatal, "halt-on-fatal", cfg.HaltOnFatal, "halt for inspection instead of resetting after a fatal error")
	f.BoolVar(&cfg.Shell, "shell", cfg.Shell, "read commissioning commands from stdin")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(statusCommand(loader))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "devlink:", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*log.ZerologAdapter, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	return log.NewZerologAdapter(lvl), nil
}

func run(cfg cliconfig.Config) error {
	adapter, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	zl := adapter.Logger()

	if err := cliconfig.EnsureClientID(&cfg); err != nil {
		return err
	}
	logConfig(zl, cfg)

	resetCh := make(chan ports.ResetMode, 1)
	resetter := ports.ResetFunc(func(mode ports.ResetMode) {
		select {
		case resetCh <- mode:
		default:
		}
	})

	d, err := devlink.New(cfg,
		devlink.WithLogger(adapter),
		devlink.WithResetter(resetter),
		provisioning.WithDefaultProvisioning(),
	)
	if err != nil {
		return fmt.Errorf("create devlink: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start devlink: %w", err)
	}

	if cfg.Shell {
		sh := shell.New(d.Gate(), resetter, os.Stdout, adapter)
		go func() {
			if err := sh.Run(ctx, os.Stdin); err != nil {
				zl.Warn().Err(err).Msg("shell input closed")
			}
		}()
	}

	// Poll for a crash so the supervisor can restart us.
	doneCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if d.Status() == devlink.StateCrashed {
					close(doneCh)
					return
				}
			}
		}
	}()

	exitCode := 0
	select {
	case sig := <-sigCh:
		zl.Info().Stringer("signal", sig).Msg("received signal, stopping...")
	case mode := <-resetCh:
		zl.Warn().Stringer("mode", mode).Msg("reset requested, restarting process")
		exitCode = resetExitCode(mode)
	case <-doneCh:
		zl.Error().Msg("devlink crashed")
		return fmt.Errorf("devlink crashed")
	}

	if err := d.Stop(); err != nil {
		return fmt.Errorf("stop devlink: %w", err)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

func logConfig(zl zerolog.Logger, cfg cliconfig.Config) {
	zl.Info().
		Str("state_dir", cfg.StateDir).
		Str("endpoint", cfg.Endpoint).
		Str("client_id", cfg.ClientID).
		Str("iface", cfg.Iface).
		Bool("alt_protocol", cfg.AltProtocol).
		Dur("retry_delay", cfg.RetryDelay).
		Dur("keepalive_interval", cfg.KeepAliveInterval).
		Int("queue_capacity", cfg.QueueCapacity).
		Msg("configuration")
}

func statusCommand(loader *configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the last recorded orchestrator status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loader.load(cmd); err != nil {
				return err
			}
			dir := loader.cfg.StateDir
			if dir == "" {
				dir = cliconfig.DefaultStateDir()
			}
			repo := fs.NewStatusFileRepository(dir)
			s, err := repo.Load(cmd.Context())
			if err != nil {
				return err
			}
			if s.UpdatedAt == "" {
				return fmt.Errorf("no status recorded in %s", repo.Path())
			}
			return renderStatus(cmd.OutOrStdout(), s)
		},
	}
}

func renderStatus(w io.Writer, s ports.Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}
