package devlink_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/internal/ports"
	"github.com/bft-labs/devlink/pkg/devlink"
)

type fakeLink struct {
	ready atomic.Bool
	mu    sync.Mutex
	cb    ports.LinkCallback
}

func (l *fakeLink) Init(context.Context) error { return nil }

func (l *fakeLink) RegisterEventCallback(cb ports.LinkCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cb = cb
}

func (l *fakeLink) IsReady() bool { return l.ready.Load() }

func (l *fakeLink) Status() domain.LinkStatus {
	return domain.LinkStatus{ID: "imei-1", SignalQuality: -70, SINR: 12}
}

func (l *fakeLink) set(ready bool) {
	l.ready.Store(ready)
	l.mu.Lock()
	cb := l.cb
	l.mu.Unlock()
	if cb == nil {
		return
	}
	if ready {
		cb(domain.LinkReady)
	} else {
		cb(domain.LinkDisconnected)
	}
}

type publish struct {
	topic   domain.Topic
	payload []byte
}

type fakeCloud struct {
	mu        sync.Mutex
	connected bool
	cert, key []byte
	publishes []publish
	metadata  map[string]string
}

func (c *fakeCloud) Init(context.Context) error { return nil }

func (c *fakeCloud) SetCredentials(cert, key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cert, c.key = cert, key
	return nil
}

func (c *fakeCloud) ResolveServer(context.Context) error { return nil }

func (c *fakeCloud) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *fakeCloud) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeCloud) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeCloud) Publish(_ context.Context, topic domain.Topic, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishes = append(c.publishes, publish{topic, payload})
	return nil
}

func (c *fakeCloud) SetStatusCallback(ports.CloudStatusCallback) {}

func (c *fakeCloud) PublishPersistentMetadata(_ context.Context, fields map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata = fields
	return nil
}

func (c *fakeCloud) telemetry() []publish {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []publish
	for _, p := range c.publishes {
		if p.topic == domain.TopicTelemetry {
			out = append(out, p)
		}
	}
	return out
}

type memStore struct {
	mu           sync.Mutex
	commissioned bool
	entries      map[domain.CredentialKind][]byte
}

func newMemStore() *memStore {
	return &memStore{entries: map[domain.CredentialKind][]byte{}}
}

func (s *memStore) ReadCommissioned() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commissioned, nil
}

func (s *memStore) StoreCommissioned(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commissioned = v
	return nil
}

func (s *memStore) Store(kind domain.CredentialKind, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[kind] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Read(kind domain.CredentialKind) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.entries[kind]
	if !ok {
		return nil, domain.ErrCredentialMissing
	}
	return b, nil
}

func (s *memStore) Delete(kind domain.CredentialKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, kind)
	return nil
}

type recordingHandler struct {
	devlink.NoopEventHandler
	mu          sync.Mutex
	states      []devlink.State
	transitions []devlink.TransitionEvent
	statuses    []devlink.CloudStatus
}

func (h *recordingHandler) OnStateChange(e devlink.StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, e.Current)
}

func (h *recordingHandler) OnTransition(e devlink.TransitionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, e)
}

func (h *recordingHandler) OnCloudStatus(e devlink.CloudStatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, e.Status)
}

type recordingPlugin struct {
	name  string
	order *[]string
	mu    *sync.Mutex
	cfg   devlink.PluginConfig
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) Initialize(_ context.Context, cfg devlink.PluginConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
	*p.order = append(*p.order, "init:"+p.name)
	return nil
}

func (p *recordingPlugin) Shutdown(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	*p.order = append(*p.order, "shutdown:"+p.name)
	return nil
}
