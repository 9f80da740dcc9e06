package app

import "sync/atomic"

// Session tracks the cloud session generation. Every successful connect
// starts a new generation; events stamped with an older one are stale.
type Session struct {
	gen  atomic.Uint64
	live atomic.Bool
}

// Current returns the current generation.
func (s *Session) Current() uint64 {
	return s.gen.Load()
}

// Next starts a new live generation and returns it.
func (s *Session) Next() uint64 {
	gen := s.gen.Add(1)
	s.live.Store(true)
	return gen
}

// End marks the current generation as no longer connected.
func (s *Session) End() {
	s.live.Store(false)
}

// Live reports whether a session is established.
func (s *Session) Live() bool {
	return s.live.Load()
}

// Stale reports whether gen belongs to an earlier session.
func (s *Session) Stale(gen uint64) bool {
	return gen != s.gen.Load()
}
