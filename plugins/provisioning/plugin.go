// Package provisioning provides a file-drop provisioning transport for
// devlink. When enabled, it watches a directory for credential files,
// installs them through the commissioning gate and reports the cloud
// status back into the same directory.
//
// Files understood in the provisioning directory:
//
//	cert.pem       device certificate, installed then removed
//	key.pem        device private key, installed then removed
//	decommission   any content; clears credentials, then removed
//	endpoint       cloud endpoint stored for the next boot, then removed
//	client_id      client id stored for the next boot, then removed
//	root_ca.pem    trusted root CA stored for the next boot, then removed
//
// Each handled file gets a <name>.result file holding the console error
// code and message. The status file holds the latest cloud status.
package provisioning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/devlink/pkg/devlink"
	"github.com/bft-labs/devlink/pkg/log"
)

// File names in the provisioning directory.
const (
	CertFile         = "cert.pem"
	KeyFile          = "key.pem"
	DecommissionFile = "decommission"
	EndpointFile     = "endpoint"
	ClientIDFile     = "client_id"
	RootCAFile       = "root_ca.pem"
	StatusFile       = "status"
	ResultSuffix     = ".result"
)

// Plugin implements the file-drop provisioning transport.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	dir           string
	debounceDelay time.Duration

	// Runtime state
	gate        devlink.Commissioner
	logger      log.Logger
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	timers      map[string]*time.Timer
	status      devlink.CloudStatus
	disconnects int
}

// Config holds configuration options for the provisioning plugin.
type Config struct {
	// Dir is the watched directory. Empty means the provision_dir of the
	// devlink configuration.
	Dir string

	// DebounceDelay is the delay to wait after a file change before
	// reading it, so writers can finish.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new provisioning plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		dir:           cfg.Dir,
		debounceDelay: cfg.DebounceDelay,
		timers:        make(map[string]*time.Timer),
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "provisioning"
}

// Initialize creates the provisioning directory, handles files already
// present and starts watching for new ones.
func (p *Plugin) Initialize(ctx context.Context, cfg devlink.PluginConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	p.mu.Lock()
	if p.dir == "" {
		p.dir = cfg.ProvisionDir
	}
	p.gate = cfg.Commissioner
	p.logger = log.With(logger, log.String("component", "provisioning"))
	dir := p.dir
	p.mu.Unlock()

	if dir == "" || p.gate == nil {
		p.logger.Warn("provisioning disabled: no directory or commissioner configured")
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create provisioning dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	if cfg.RegisterStatusSink != nil {
		cfg.RegisterStatusSink(p)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for _, name := range requestFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			p.debounceHandle(watchCtx, name)
		}
	}

	p.logger.Info("provisioning transport watching", log.String("dir", dir))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	return nil
}

// Shutdown stops the watcher and pending handlers.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for name, t := range p.timers {
		t.Stop()
		delete(p.timers, name)
	}
	return nil
}

// watchLoop dispatches file events until ctx is cancelled.
func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if !handled(name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceHandle(ctx, name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("provisioning watcher error", log.Err(err))
		}
	}
}

var requestFiles = []string{CertFile, KeyFile, DecommissionFile, EndpointFile, ClientIDFile, RootCAFile}

func handled(name string) bool {
	for _, f := range requestFiles {
		if name == f {
			return true
		}
	}
	return false
}

func (p *Plugin) debounceHandle(ctx context.Context, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.timers[name]; ok {
		t.Stop()
	}
	p.timers[name] = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.handle(name)
	})
}

// handle processes one dropped file.
func (p *Plugin) handle(name string) {
	path := filepath.Join(p.dir, name)

	var err error
	switch name {
	case CertFile:
		err = p.install(path, devlink.CredentialCert)
	case KeyFile:
		err = p.install(path, devlink.CredentialKey)
	case DecommissionFile:
		err = p.gate.Decommission()
	case EndpointFile:
		err = p.storeIdentity(path, devlink.CredentialEndpoint)
	case ClientIDFile:
		err = p.storeIdentity(path, devlink.CredentialClientID)
	case RootCAFile:
		err = p.storeIdentity(path, devlink.CredentialRootCA)
	}
	if errors.Is(err, fs.ErrNotExist) {
		// Consumed by an earlier event.
		return
	}

	code := devlink.Code(err)
	if err != nil {
		p.logger.Warn("provisioning request failed",
			log.String("file", name),
			log.Int("code", code),
			log.Err(err))
	} else {
		p.logger.Info("provisioning request applied", log.String("file", name))
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			p.logger.Warn("remove provisioning file", log.String("file", name), log.Err(rmErr))
		}
	}

	result := fmt.Sprintf("%d\n", code)
	if err != nil {
		result = fmt.Sprintf("%d %v\n", code, err)
	}
	if wErr := writeAtomic(path+ResultSuffix, []byte(result)); wErr != nil {
		p.logger.Warn("write provisioning result", log.String("file", name), log.Err(wErr))
	}
}

func (p *Plugin) install(path string, kind devlink.CredentialKind) error {
	data, err := readRequest(path)
	if err != nil {
		return err
	}
	return p.gate.InstallCredential(kind, data)
}

func (p *Plugin) storeIdentity(path string, kind devlink.CredentialKind) error {
	data, err := readRequest(path)
	if err != nil {
		return err
	}
	if kind != devlink.CredentialRootCA {
		data = bytes.TrimSpace(data)
	}
	return p.gate.StoreIdentity(kind, data)
}

func readRequest(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		// Created but not yet written; the write event follows.
		return nil, fs.ErrNotExist
	}
	return data, nil
}

// SetStatus records the cloud status in the status file.
func (p *Plugin) SetStatus(s devlink.CloudStatus) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
	p.writeStatus()
}

// OnDisconnect counts session drops in the status file.
func (p *Plugin) OnDisconnect() {
	p.mu.Lock()
	p.disconnects++
	p.mu.Unlock()
	p.writeStatus()
}

func (p *Plugin) writeStatus() {
	p.mu.Lock()
	body := fmt.Sprintf("status=%s\ndisconnects=%d\n", p.status, p.disconnects)
	path := filepath.Join(p.dir, StatusFile)
	logger := p.logger
	p.mu.Unlock()

	if err := writeAtomic(path, []byte(body)); err != nil {
		logger.Warn("write provisioning status", log.Err(err))
	}
}

// writeAtomic writes data to a temp file and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Ensure Plugin implements devlink.Plugin and devlink.StatusSink.
var (
	_ devlink.Plugin     = (*Plugin)(nil)
	_ devlink.StatusSink = (*Plugin)(nil)
)
