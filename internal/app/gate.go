package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/internal/ports"
	"github.com/bft-labs/devlink/pkg/log"
)

// Default credential size limits.
const (
	DefaultMaxCertBytes = 2048
	DefaultMaxKeyBytes  = 2048
)

// GateConfig bounds installable credentials.
type GateConfig struct {
	MaxCertBytes int
	MaxKeyBytes  int
}

// CommissioningGate arbitrates credential installation and decommissioning.
// It is the only writer of the commissioning flags.
type CommissioningGate struct {
	mu      sync.Mutex
	creds   domain.Credentials
	allowed bool
	ready   bool
	gen     uint64

	cfg     GateConfig
	store   ports.CredentialStore
	queue   *EventQueue
	session *Session
	latch   *Latch
	logger  log.Logger
}

// NewCommissioningGate creates a gate over store. Installed credentials and
// decommission requests are announced on queue while session is live.
func NewCommissioningGate(cfg GateConfig, store ports.CredentialStore, queue *EventQueue, session *Session, logger log.Logger) *CommissioningGate {
	if cfg.MaxCertBytes <= 0 {
		cfg.MaxCertBytes = DefaultMaxCertBytes
	}
	if cfg.MaxKeyBytes <= 0 {
		cfg.MaxKeyBytes = DefaultMaxKeyBytes
	}
	return &CommissioningGate{
		cfg:     cfg,
		store:   store,
		queue:   queue,
		session: session,
		latch:   NewLatch(),
		logger:  log.With(logger, log.String("component", "gate")),
	}
}

// Load reads the commissioning flags from the store.
func (g *CommissioningGate) Load() (domain.Credentials, error) {
	commissioned, err := g.store.ReadCommissioned()
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("read commissioned flag: %w", err)
	}
	certPresent, err := g.present(domain.CredentialCert)
	if err != nil {
		return domain.Credentials{}, err
	}
	keyPresent, err := g.present(domain.CredentialKey)
	if err != nil {
		return domain.Credentials{}, err
	}

	creds := domain.Credentials{
		CertPresent:  certPresent,
		KeyPresent:   keyPresent,
		Commissioned: commissioned,
	}
	g.mu.Lock()
	g.creds = creds
	g.mu.Unlock()
	return creds, nil
}

func (g *CommissioningGate) present(kind domain.CredentialKind) (bool, error) {
	_, err := g.store.Read(kind)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrCredentialMissing):
		return false, nil
	default:
		return false, fmt.Errorf("read %s: %w", kind, err)
	}
}

// MarkReady records that boot completed. Before that every mutating call
// fails with domain.ErrNotReady.
func (g *CommissioningGate) MarkReady() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready = true
}

// AllowCommissioning permits credential installation.
func (g *CommissioningGate) AllowCommissioning() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowed = true
}

// Credentials returns the current flags.
func (g *CommissioningGate) Credentials() domain.Credentials {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.creds
}

// Allowed reports whether credential installation is currently permitted.
func (g *CommissioningGate) Allowed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.allowed
}

// Generation increments whenever the credential set is completed or cleared.
func (g *CommissioningGate) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

// Latch is released when commissioning completes.
func (g *CommissioningGate) Latch() *Latch {
	return g.latch
}

// StoredCredentials reads the certificate and key from the store.
func (g *CommissioningGate) StoredCredentials() (cert, key []byte, err error) {
	cert, err = g.store.Read(domain.CredentialCert)
	if err != nil {
		return nil, nil, fmt.Errorf("read cert: %w", err)
	}
	key, err = g.store.Read(domain.CredentialKey)
	if err != nil {
		return nil, nil, fmt.Errorf("read key: %w", err)
	}
	return cert, key, nil
}

func (g *CommissioningGate) maxLen(kind domain.CredentialKind) int {
	if kind == domain.CredentialKey {
		return g.cfg.MaxKeyBytes
	}
	return g.cfg.MaxCertBytes
}

// InstallCredential stores a certificate or key. Once both are present the
// device is commissioned, further installs are refused and the
// commissioning latch is released.
func (g *CommissioningGate) InstallCredential(kind domain.CredentialKind, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.ready {
		return domain.ErrNotReady
	}
	if !kind.Installable() {
		return fmt.Errorf("%w: %s", domain.ErrUnknownCredential, kind)
	}
	if !g.allowed {
		return domain.ErrCommissionDisallowed
	}
	if limit := g.maxLen(kind); len(data) > limit {
		return fmt.Errorf("%w: %s is %d bytes, max %d", domain.ErrCredTooLarge, kind, len(data), limit)
	}

	if err := g.store.Store(kind, data); err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}
	if kind == domain.CredentialCert {
		g.creds.CertPresent = true
	} else {
		g.creds.KeyPresent = true
	}
	g.logger.Info("credential installed", log.Stringer("kind", kind), log.Int("bytes", len(data)))

	if !g.creds.Complete() {
		return nil
	}

	if err := g.store.StoreCommissioned(true); err != nil {
		return fmt.Errorf("store commissioned flag: %w", err)
	}
	g.creds.Commissioned = true
	g.allowed = false
	g.gen++
	g.announce(domain.EventCredentialsInstalled)
	g.latch.Set()
	g.logger.Info("device commissioned")
	return nil
}

// StoreIdentity stores an endpoint, client id or root CA. The value takes
// effect on the next boot and never changes the commissioning flags.
func (g *CommissioningGate) StoreIdentity(kind domain.CredentialKind, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.ready {
		return domain.ErrNotReady
	}
	if !kind.Identity() {
		return fmt.Errorf("%w: %s", domain.ErrUnknownCredential, kind)
	}
	if limit := g.maxLen(kind); len(data) > limit {
		return fmt.Errorf("%w: %s is %d bytes, max %d", domain.ErrCredTooLarge, kind, len(data), limit)
	}

	if len(data) == 0 {
		if err := g.store.Delete(kind); err != nil {
			return fmt.Errorf("delete %s: %w", kind, err)
		}
		g.logger.Info("identity cleared", log.Stringer("kind", kind))
		return nil
	}
	if err := g.store.Store(kind, data); err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}
	g.logger.Info("identity stored, applied at next boot", log.Stringer("kind", kind), log.Int("bytes", len(data)))
	return nil
}

// Decommission clears the stored credentials and the commissioned flag and
// permits commissioning again. It is idempotent: a decommission request is
// only announced when something changed and a session is live.
func (g *CommissioningGate) Decommission() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.ready {
		return domain.ErrNotReady
	}
	changed := g.creds != (domain.Credentials{})
	if err := g.clearLocked(); err != nil {
		return err
	}
	if changed {
		g.announce(domain.EventDecommissionRequested)
		g.logger.Info("device decommissioned")
	}
	return nil
}

// announce enqueues a credential change for the streaming loop. Without a
// live session the state machine reads the flags directly, so nothing is
// queued.
func (g *CommissioningGate) announce(kind domain.EventKind) {
	if !g.session.Live() {
		return
	}
	g.queue.Enqueue(domain.NewEvent(kind, g.session.Current()))
}

// Revoke clears credentials the cloud client rejected. Unlike Decommission
// it does not announce anything on the queue.
func (g *CommissioningGate) Revoke() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logger.Warn("revoking rejected credentials")
	return g.clearLocked()
}

func (g *CommissioningGate) clearLocked() error {
	if err := g.store.Delete(domain.CredentialCert); err != nil {
		return fmt.Errorf("delete cert: %w", err)
	}
	if err := g.store.Delete(domain.CredentialKey); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	if err := g.store.StoreCommissioned(false); err != nil {
		return fmt.Errorf("store commissioned flag: %w", err)
	}
	if g.creds != (domain.Credentials{}) {
		g.gen++
	}
	g.creds = domain.Credentials{}
	g.allowed = true
	g.latch.Reset()
	return nil
}
