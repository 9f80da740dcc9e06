//go:build !linux

package hostlink

import "context"

// Init records the current link state and polls for changes.
func (m *Monitor) Init(ctx context.Context) error {
	m.refresh()
	go m.poll(ctx)
	return nil
}

func (m *Monitor) defaultProbe() probeFunc {
	return m.interfaceProbe
}
