// Package hostlink implements the network link port over a host network
// interface. On Linux link changes arrive over netlink; elsewhere the
// interface is polled.
package hostlink

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/internal/ports"
	"github.com/bft-labs/devlink/pkg/log"
)

// DefaultPollInterval is used when netlink is unavailable.
const DefaultPollInterval = 2 * time.Second

// Config selects the monitored interface.
type Config struct {
	// Interface is the interface name. Empty means any non-loopback interface.
	Interface string

	// PollInterval applies to the polling monitor.
	PollInterval time.Duration

	// FirmwareVersion is reported as the radio firmware version.
	FirmwareVersion string

	// ICCID is reported as the SIM identifier when known.
	ICCID string
}

// probeFunc reports readiness and identity of the monitored link.
type probeFunc func() (bool, domain.LinkStatus, error)

// Monitor implements ports.NetworkLink.
type Monitor struct {
	cfg    Config
	probe  probeFunc
	logger log.Logger

	ready  atomic.Bool
	mu     sync.Mutex
	cb     ports.LinkCallback
	status domain.LinkStatus
}

// New creates a monitor for cfg.
func New(cfg Config, logger log.Logger) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	m := &Monitor{
		cfg:    cfg,
		logger: log.With(logger, log.String("component", "link")),
	}
	m.probe = m.defaultProbe()
	return m
}

// RegisterEventCallback sets the readiness callback.
func (m *Monitor) RegisterEventCallback(cb ports.LinkCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = cb
}

// IsReady reports whether the link is up.
func (m *Monitor) IsReady() bool {
	return m.ready.Load()
}

// Status returns the last observed link identity.
func (m *Monitor) Status() domain.LinkStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// update records an observation and fires the callback on a change.
func (m *Monitor) update(up bool, status domain.LinkStatus) {
	status.FirmwareVersion = m.cfg.FirmwareVersion
	status.ICCID = m.cfg.ICCID

	m.mu.Lock()
	m.status = status
	cb := m.cb
	m.mu.Unlock()

	if m.ready.Swap(up) == up {
		return
	}
	ev := domain.LinkDisconnected
	if up {
		ev = domain.LinkReady
	}
	m.logger.Info("link changed", log.Stringer("event", ev), log.String("iface", status.Serial))
	if cb != nil {
		cb(ev)
	}
}

// refresh probes once and records the result.
func (m *Monitor) refresh() {
	up, status, err := m.probe()
	if err != nil {
		m.logger.Debug("link probe failed", log.Err(err))
		up = false
	}
	m.update(up, status)
}

// poll refreshes on every tick until ctx ends.
func (m *Monitor) poll(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh()
		}
	}
}

// interfaceProbe inspects interfaces through the net package.
func (m *Monitor) interfaceProbe() (bool, domain.LinkStatus, error) {
	if m.cfg.Interface != "" {
		iface, err := net.InterfaceByName(m.cfg.Interface)
		if err != nil {
			return false, domain.LinkStatus{}, fmt.Errorf("interface %s: %w", m.cfg.Interface, err)
		}
		return ifaceUp(iface.Flags), ifaceStatus(iface.Name, iface.HardwareAddr), nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return false, domain.LinkStatus{}, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || !ifaceUp(iface.Flags) {
			continue
		}
		return true, ifaceStatus(iface.Name, iface.HardwareAddr), nil
	}
	return false, domain.LinkStatus{}, nil
}

func ifaceUp(flags net.Flags) bool {
	return flags&net.FlagUp != 0 && flags&net.FlagRunning != 0
}

func ifaceStatus(name string, hw net.HardwareAddr) domain.LinkStatus {
	return domain.LinkStatus{ID: hw.String(), Serial: name}
}
