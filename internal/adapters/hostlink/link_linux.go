//go:build linux

package hostlink

import (
	"context"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/pkg/log"
)

// Init records the current link state and follows netlink link updates,
// falling back to polling when the subscription cannot be opened.
func (m *Monitor) Init(ctx context.Context) error {
	m.refresh()

	updates := make(chan netlink.LinkUpdate, 16)
	done := make(chan struct{})
	if err := netlink.LinkSubscribe(updates, done); err != nil {
		m.logger.Warn("netlink subscribe failed, polling instead", log.Err(err))
		go m.poll(ctx)
		return nil
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					m.logger.Warn("netlink subscription closed, polling instead")
					m.poll(ctx)
					return
				}
				if m.cfg.Interface == "" || u.Link.Attrs().Name == m.cfg.Interface {
					m.refresh()
				}
			}
		}
	}()
	return nil
}

func (m *Monitor) defaultProbe() probeFunc {
	return func() (bool, domain.LinkStatus, error) { return netlinkProbe(m) }
}

// netlinkProbe reads link attributes over netlink.
func netlinkProbe(m *Monitor) (bool, domain.LinkStatus, error) {
	if m.cfg.Interface != "" {
		link, err := netlink.LinkByName(m.cfg.Interface)
		if err != nil {
			return false, domain.LinkStatus{}, err
		}
		attrs := link.Attrs()
		return linkUp(attrs), ifaceStatus(attrs.Name, attrs.HardwareAddr), nil
	}

	links, err := netlink.LinkList()
	if err != nil {
		return false, domain.LinkStatus{}, err
	}
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Flags&net.FlagLoopback != 0 || !linkUp(attrs) {
			continue
		}
		return true, ifaceStatus(attrs.Name, attrs.HardwareAddr), nil
	}
	return false, domain.LinkStatus{}, nil
}

// linkUp treats an unknown operational state (tun, ppp) as up when the
// administrative flag is set.
func linkUp(attrs *netlink.LinkAttrs) bool {
	switch attrs.OperState {
	case netlink.OperUp:
		return true
	case netlink.OperUnknown:
		return attrs.Flags&net.FlagUp != 0
	default:
		return false
	}
}
