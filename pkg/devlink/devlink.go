package devlink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/bft-labs/devlink/internal/adapters/fs"
	"github.com/bft-labs/devlink/internal/adapters/hostlink"
	"github.com/bft-labs/devlink/internal/adapters/pubsub"
	"github.com/bft-labs/devlink/internal/adapters/sqlite"
	"github.com/bft-labs/devlink/internal/adapters/ws"
	"github.com/bft-labs/devlink/internal/app"
	"github.com/bft-labs/devlink/internal/cliconfig"
	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/internal/ports"
	"github.com/bft-labs/devlink/pkg/log"
)

// Devlink is a device connectivity orchestrator that can be embedded in
// other applications. Use New() to create an instance, then Start() to boot.
type Devlink struct {
	config    Config
	opts      options
	lifecycle *app.Lifecycle
	emitter   *eventEmitterWrapper
	logger    log.Logger

	mu  sync.RWMutex
	run *run
}

// run holds the components wired for one Start..Stop cycle.
type run struct {
	cfg        Config
	store      ports.CredentialStore
	closeStore func() error
	queue      *app.EventQueue
	session    *app.Session
	gate       *app.CommissioningGate
	status     *app.StatusBroadcaster
	keepalive  *app.KeepAliveScheduler
	machine    *app.StateMachine
	watchdog   *app.Watchdog
	dispatcher *app.Dispatcher
	recorder   *app.StatusRecorder
	link       ports.NetworkLink
	cloud      ports.CloudClient
	alt        ports.AltClient
	plugins    []Plugin
}

// New creates a new Devlink instance with the given configuration.
// The instance is created in StateStopped; call Start() to boot.
// Returns an error wrapping ErrInvalidConfig if configuration is invalid.
func New(cfg Config, opts ...Option) (*Devlink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler}

	return &Devlink{
		config:    cfg,
		opts:      o,
		lifecycle: app.NewLifecycle(logger, emitter),
		emitter:   emitter,
		logger:    logger,
	}, nil
}

// Start wires the orchestrator and boots the state machine in the
// background. Returns an error if already running or if wiring fails.
// The provided context bounds the lifetime of the run.
func (d *Devlink) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := d.lifecycle.TransitionTo(app.ProcessStarting, "Start() called"); err != nil {
		return err
	}

	runCtx := d.lifecycle.Begin(ctx)

	fail := func(r *run, err error) error {
		_ = d.lifecycle.Shutdown(app.ShutdownTimeout)
		if r != nil {
			r.close(context.Background(), d.logger)
		}
		_ = d.lifecycle.TransitionTo(app.ProcessCrashed, err.Error())
		return err
	}

	r, err := d.build()
	if err != nil {
		return fail(nil, err)
	}

	if err := r.link.Init(runCtx); err != nil {
		return fail(r, fmt.Errorf("init network link: %w", err))
	}
	if !r.cfg.AltProtocol {
		if err := r.cloud.Init(runCtx); err != nil {
			return fail(r, fmt.Errorf("init cloud client: %w", err))
		}
	}

	pluginCfg := PluginConfig{
		StateDir:           r.cfg.StateDir,
		ProvisionDir:       r.cfg.ProvisionDir,
		ClientID:           r.cfg.ClientID,
		Logger:             d.logger,
		Commissioner:       r.gate,
		RegisterStatusSink: r.status.Register,
	}
	for _, p := range d.opts.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			d.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			return fail(r, err)
		}
		r.plugins = append(r.plugins, p)
		d.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	d.run = r
	r.recorder.Save()

	d.lifecycle.Go(runCtx, "watchdog", r.watchdog.Run, nil)
	d.lifecycle.Go(runCtx, "dispatcher", r.dispatcher.Run, nil)

	return d.lifecycle.TransitionTo(app.ProcessRunning, "orchestrator started")
}

// build wires the components of one run.
func (d *Devlink) build() (*run, error) {
	cfg := d.config
	logger := d.logger

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	r := &run{cfg: cfg}

	r.store = d.opts.store
	if r.store == nil {
		s, err := sqlite.Open(filepath.Join(cfg.StateDir, sqlite.DBFileName))
		if err != nil {
			return nil, fmt.Errorf("open credential store: %w", err)
		}
		r.store = s
		r.closeStore = s.Close
	}

	rootCA, err := applyStoredIdentity(r.store, &r.cfg)
	if err != nil {
		r.close(context.Background(), logger)
		return nil, err
	}
	if err := cliconfig.EnsureClientID(&r.cfg); err != nil {
		r.close(context.Background(), logger)
		return nil, err
	}
	cfg = r.cfg

	r.queue = app.NewEventQueue(cfg.QueueCapacity, logger)
	r.session = &app.Session{}
	r.gate = app.NewCommissioningGate(app.GateConfig{
		MaxCertBytes: cfg.MaxCertBytes,
		MaxKeyBytes:  cfg.MaxKeyBytes,
	}, r.store, r.queue, r.session, logger)
	if _, err := r.gate.Load(); err != nil {
		r.close(context.Background(), logger)
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	r.link = d.opts.link
	if r.link == nil {
		r.link = hostlink.New(hostlink.Config{
			Interface:       cfg.Iface,
			FirmwareVersion: cfg.FirmwareVersion,
			ICCID:           cfg.ICCID,
		}, logger)
	}
	r.cloud = d.opts.cloud
	if r.cloud == nil {
		r.cloud = ws.New(ws.Config{
			Endpoint: cfg.Endpoint,
			ClientID: cfg.ClientID,
			RootCA:   rootCA,
		}, logger)
	}
	r.alt = d.opts.alt
	if r.alt == nil && cfg.AltProtocol {
		r.alt = pubsub.NewAltClient(cfg.RedisAddr, cfg.AltChannel, logger)
	}

	r.status = app.NewStatusBroadcaster(logger)
	r.keepalive = app.NewKeepAliveScheduler(cfg.KeepAliveInterval, r.queue, logger)
	r.machine = app.NewStateMachine(app.MachineConfig{
		AltProtocol: cfg.AltProtocol,
		Metadata:    metadata(cfg),
	}, app.Collaborators{
		Link:      r.link,
		Cloud:     r.cloud,
		Alt:       r.alt,
		Gate:      r.gate,
		Queue:     r.queue,
		Status:    r.status,
		KeepAlive: r.keepalive,
		Retry:     app.NewRetryPolicy(cfg.RetryDelay),
		Session:   r.session,
	}, logger)

	r.link.RegisterEventCallback(r.machine.OnLinkEvent)
	r.cloud.SetStatusCallback(r.machine.OnCloudStatus)

	repo := d.opts.statusRepo
	if repo == nil {
		repo = fs.NewStatusFileRepository(cfg.StateDir)
	}
	r.recorder = app.NewStatusRecorder(repo, r.snapshot, logger)
	r.status.Register(r.recorder)
	r.status.Register(d.emitter)
	r.machine.OnTransition(r.recorder.OnTransition)
	r.machine.OnTransition(d.emitter.onTransition)

	resetter := d.opts.resetter
	if resetter == nil {
		resetter = ports.ResetFunc(d.reset)
	}
	r.watchdog = app.NewWatchdog(r.queue, cfg.QueueThreshold, cfg.QueueLowWater, cfg.WatchdogInterval, logger)
	r.dispatcher = app.NewDispatcher(r.machine,
		app.NewFatalHandler(resetter, cfg.ResetDelay, cfg.HaltOnFatal, logger), logger)

	return r, nil
}

// applyStoredIdentity overrides endpoint and client id with values stored
// during provisioning and returns the root CA to trust.
func applyStoredIdentity(store ports.CredentialStore, cfg *Config) ([]byte, error) {
	read := func(kind domain.CredentialKind) (string, error) {
		b, err := store.Read(kind)
		if errors.Is(err, domain.ErrCredentialMissing) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", kind, err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	endpoint, err := read(domain.CredentialEndpoint)
	if err != nil {
		return nil, err
	}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	clientID, err := read(domain.CredentialClientID)
	if err != nil {
		return nil, err
	}
	if clientID != "" {
		cfg.ClientID = clientID
	}

	rootCA, err := store.Read(domain.CredentialRootCA)
	switch {
	case err == nil:
		return rootCA, nil
	case !errors.Is(err, domain.ErrCredentialMissing):
		return nil, fmt.Errorf("read root_ca: %w", err)
	}
	if cfg.RootCAPath == "" {
		return nil, nil
	}
	rootCA, err = os.ReadFile(cfg.RootCAPath)
	if err != nil {
		return nil, fmt.Errorf("read root CA: %w", err)
	}
	return rootCA, nil
}

// Stop shuts the orchestrator down: the state machine and workers are
// cancelled, the cloud session is closed and plugins are shut down.
// Waits up to ShutdownTimeout before giving up.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (d *Devlink) Stop() error {
	d.mu.Lock()
	if !d.lifecycle.CanStop() {
		d.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := d.lifecycle.TransitionTo(app.ProcessStopping, "Stop() called"); err != nil {
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()

	err := d.teardown()
	if err != nil {
		_ = d.lifecycle.TransitionTo(app.ProcessCrashed, "shutdown timeout")
	} else {
		_ = d.lifecycle.TransitionTo(app.ProcessStopped, "graceful shutdown")
	}
	return err
}

// teardown cancels the run, waits for its workers and releases resources.
func (d *Devlink) teardown() error {
	err := d.lifecycle.Shutdown(app.ShutdownTimeout)

	d.mu.Lock()
	r := d.run
	d.run = nil
	d.mu.Unlock()

	if r != nil {
		r.close(context.Background(), d.logger)
	}
	return err
}

// reset is the default Resetter: it ends the run and leaves the instance
// Crashed. It runs from the dispatcher goroutine, so the wait happens
// elsewhere.
func (d *Devlink) reset(mode ports.ResetMode) {
	go func() {
		if err := d.lifecycle.TransitionTo(app.ProcessStopping, "reset requested ("+mode.String()+")"); err != nil {
			return
		}
		if err := d.teardown(); err != nil {
			d.logger.Warn("reset teardown incomplete", log.Err(err))
		}
		_ = d.lifecycle.TransitionTo(app.ProcessCrashed, "reset ("+mode.String()+")")
	}()
}

func (r *run) close(ctx context.Context, logger log.Logger) {
	if r.keepalive != nil {
		r.keepalive.Stop()
	}
	if r.cloud != nil {
		r.cloud.Disconnect()
	}
	if r.alt != nil {
		if err := r.alt.Close(); err != nil {
			logger.Warn("close alternate client", log.Err(err))
		}
	}
	for i := len(r.plugins) - 1; i >= 0; i-- {
		p := r.plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
		} else {
			logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
		}
	}
	if r.recorder != nil {
		r.recorder.Save()
	}
	if r.closeStore != nil {
		if err := r.closeStore(); err != nil {
			logger.Warn("close credential store", log.Err(err))
		}
	}
}

func (r *run) snapshot() ports.Snapshot {
	return ports.Snapshot{
		LifecycleState: r.machine.State().String(),
		CloudStatus:    r.status.Status().String(),
		Commissioned:   r.gate.Credentials().Commissioned,
		QueueDepth:     r.queue.Depth(),
		DroppedTotal:   r.queue.Dropped(),
	}
}

func (d *Devlink) current() *run {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.run
}

// Status returns the current process state.
// Safe to call concurrently from any goroutine.
func (d *Devlink) Status() State {
	return convertState(d.lifecycle.State())
}

// Snapshot returns the orchestrator status of the current run. The zero
// Snapshot is returned when not running.
func (d *Devlink) Snapshot() Snapshot {
	r := d.current()
	if r == nil {
		return Snapshot{}
	}
	return r.snapshot()
}

// LifecycleState returns the connectivity lifecycle state, Startup when
// not running.
func (d *Devlink) LifecycleState() LifecycleState {
	r := d.current()
	if r == nil {
		return domain.StateStartup
	}
	return r.machine.State()
}

// Credentials returns the commissioning flags of the current run.
func (d *Devlink) Credentials() Credentials {
	r := d.current()
	if r == nil {
		return Credentials{}
	}
	return r.gate.Credentials()
}

// Gate returns the commissioning surface. It stays valid across restarts
// and reports ErrNotReady while the orchestrator is not running.
func (d *Devlink) Gate() Commissioner {
	return commissioner{d}
}

// PostSample enqueues a sensor reading for publishing. JSON payloads are
// embedded as is; anything else is base64 encoded. Returns false when the
// sample was dropped.
func (d *Devlink) PostSample(payload []byte) bool {
	r := d.current()
	if r == nil {
		return false
	}
	return r.queue.Enqueue(domain.NewSensorSample(payload, r.session.Current()))
}

type commissioner struct{ d *Devlink }

func (c commissioner) InstallCredential(kind CredentialKind, data []byte) error {
	r := c.d.current()
	if r == nil {
		return domain.ErrNotReady
	}
	return r.gate.InstallCredential(kind, data)
}

func (c commissioner) StoreIdentity(kind CredentialKind, data []byte) error {
	r := c.d.current()
	if r == nil {
		return domain.ErrNotReady
	}
	return r.gate.StoreIdentity(kind, data)
}

func (c commissioner) Decommission() error {
	r := c.d.current()
	if r == nil {
		return domain.ErrNotReady
	}
	return r.gate.Decommission()
}

// metadata returns the persistent fields published once per boot.
func metadata(cfg Config) map[string]string {
	return map[string]string{
		"firmware_version": cfg.FirmwareVersion,
		"os_version":       osVersion(),
		"client_id":        cfg.ClientID,
		"hostname":         hostname(),
	}
}

// osVersion returns the kernel release when available.
func osVersion() string {
	if b, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		return runtime.GOOS + " " + strings.TrimSpace(string(b))
	}
	return runtime.GOOS + "/" + runtime.GOARCH
}

// hostname returns the current hostname.
func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}

// validateModuleVersions checks that all module versions are compatible.
// Returns an error if any module version is below its minimum compatible version.
func validateModuleVersions() error {
	modules := map[string]struct {
		version    string
		minVersion string
	}{
		"log":     {log.Version, log.MinCompatibleVersion},
		"devlink": {Version, MinCompatibleVersion},
	}

	for name, m := range modules {
		if !isVersionCompatible(m.version, m.minVersion) {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				name, m.version, m.minVersion)
		}
	}

	return nil
}

// isVersionCompatible checks if version >= minVersion using semantic versioning.
// Assumes versions are in format "major.minor.patch".
func isVersionCompatible(version, minVersion string) bool {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	_, _ = fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch)
	_, _ = fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch)

	if vMajor != mMajor {
		return vMajor > mMajor
	}
	if vMinor != mMinor {
		return vMinor > mMinor
	}
	return vPatch >= mPatch
}
