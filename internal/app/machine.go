package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/internal/ports"
	"github.com/bft-labs/devlink/pkg/log"
)

// MachineConfig configures the connectivity state machine.
type MachineConfig struct {
	// AltProtocol selects the alternate-protocol branch after network attach.
	AltProtocol bool

	// Metadata holds static device fields published once per boot with the
	// persistent device metadata (firmware version, OS version).
	Metadata map[string]string
}

// TransitionFunc observes state machine transitions.
type TransitionFunc func(from, to domain.State)

// handler runs one state. It returns the next state; a non-nil error is
// only returned when ctx ends.
type handler func(ctx context.Context) (domain.State, error)

// FatalError is a consistency violation inside the state machine.
type FatalError struct {
	State domain.State
	Cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal error in state %s: %v", e.State, e.Cause)
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

// StateMachine is the sequential connectivity driver. Only Step changes the
// current state.
type StateMachine struct {
	cfg       MachineConfig
	link      ports.NetworkLink
	cloud     ports.CloudClient
	alt       ports.AltClient
	gate      *CommissioningGate
	queue     *EventQueue
	status    *StatusBroadcaster
	keepalive *KeepAliveScheduler
	retry     *RetryPolicy
	session   *Session
	linkReady *Latch
	logger    log.Logger

	handlers map[domain.State]handler

	mu           sync.RWMutex
	state        domain.State
	onTransition []TransitionFunc

	// Owned by the driver goroutine.
	resolved          bool
	metadataPublished bool
	appliedGen        uint64
	credsApplied      bool
	startedAt         time.Time
}

// Collaborators groups the state machine's dependencies.
type Collaborators struct {
	Link      ports.NetworkLink
	Cloud     ports.CloudClient
	Alt       ports.AltClient
	Gate      *CommissioningGate
	Queue     *EventQueue
	Status    *StatusBroadcaster
	KeepAlive *KeepAliveScheduler
	Retry     *RetryPolicy
	Session   *Session
}

// NewStateMachine creates a state machine in Startup.
func NewStateMachine(cfg MachineConfig, c Collaborators, logger log.Logger) *StateMachine {
	m := &StateMachine{
		cfg:       cfg,
		link:      c.Link,
		cloud:     c.Cloud,
		alt:       c.Alt,
		gate:      c.Gate,
		queue:     c.Queue,
		status:    c.Status,
		keepalive: c.KeepAlive,
		retry:     c.Retry,
		session:   c.Session,
		linkReady: NewLatch(),
		logger:    log.With(logger, log.String("component", "machine")),
		state:     domain.StateStartup,
		startedAt: time.Now(),
	}
	m.handlers = map[domain.State]handler{
		domain.StateStartup:        m.startup,
		domain.StateCommissioning:  m.commissioning,
		domain.StateWaitForNetwork: m.waitForNetwork,
		domain.StateResolveServer:  m.resolveServer,
		domain.StateConnecting:     m.connecting,
		domain.StateInitSession:    m.initSession,
		domain.StateStreaming:      m.streaming,
		domain.StateDisconnecting:  m.disconnecting,
		domain.StateInitAltClient:  m.initAltClient,
		domain.StateAltStreaming:   m.altStreaming,
	}
	return m
}

// State returns the current state.
func (m *StateMachine) State() domain.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnTransition registers fn to be called after every state change.
func (m *StateMachine) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = append(m.onTransition, fn)
}

// Step runs the current state's handler and applies the transition it
// returns. A state with no handler yields a *FatalError.
func (m *StateMachine) Step(ctx context.Context) (domain.State, error) {
	cur := m.State()
	h, ok := m.handlers[cur]
	if !ok {
		return cur, &FatalError{State: cur, Cause: fmt.Errorf("no handler for state %d", int(cur))}
	}

	next, err := h(ctx)
	if err != nil {
		return cur, err
	}
	m.transition(cur, next)
	return next, nil
}

func (m *StateMachine) transition(from, to domain.State) {
	if from == to {
		return
	}
	m.mu.Lock()
	m.state = to
	observers := append([]TransitionFunc(nil), m.onTransition...)
	m.mu.Unlock()

	m.logger.Info("state transition",
		log.Stringer("from", from),
		log.Stringer("to", to),
	)
	for _, fn := range observers {
		fn(from, to)
	}
}

// OnLinkEvent is the network link callback. It never blocks.
func (m *StateMachine) OnLinkEvent(ev domain.LinkEvent) {
	m.logger.Debug("link event", log.Stringer("event", ev))
	switch ev {
	case domain.LinkReady:
		m.linkReady.Set()
	case domain.LinkDisconnected:
		m.linkReady.Reset()
		if m.State().Connected() {
			m.queue.Enqueue(domain.NewEvent(domain.EventSessionDisconnected, m.session.Current()))
		}
	}
}

// OnCloudStatus is the cloud client status callback. It never blocks.
func (m *StateMachine) OnCloudStatus(s domain.CloudStatus) {
	if s != domain.CloudDisconnected && s != domain.CloudConnectionError {
		return
	}
	if m.State().Connected() {
		m.queue.Enqueue(domain.NewEvent(domain.EventSessionDisconnected, m.session.Current()))
	}
}

func (m *StateMachine) startup(ctx context.Context) (domain.State, error) {
	m.gate.MarkReady()

	creds := m.gate.Credentials()
	if !creds.Commissioned || !creds.Complete() {
		m.status.SetStatus(domain.CloudNotProvisioned)
		return domain.StateCommissioning, nil
	}
	if err := m.applyCredentials(); err != nil {
		m.logger.Error("stored credentials rejected", log.Err(err))
		m.revoke()
		m.status.SetStatus(domain.CloudNotProvisioned)
		return domain.StateCommissioning, nil
	}
	m.status.SetStatus(domain.CloudDisconnected)
	return domain.StateWaitForNetwork, nil
}

func (m *StateMachine) commissioning(ctx context.Context) (domain.State, error) {
	creds := m.gate.Credentials()
	if !creds.Commissioned || !creds.Complete() {
		if creds.Commissioned {
			// Flag persisted without both credentials.
			m.revoke()
		}
		m.gate.AllowCommissioning()
		m.status.SetStatus(domain.CloudNotProvisioned)
		m.logger.Info("waiting for commissioning")
		if err := m.gate.Latch().Wait(ctx); err != nil {
			return domain.StateCommissioning, err
		}
	}

	if !m.gate.Credentials().Complete() {
		return domain.StateCommissioning, nil
	}
	if err := m.applyCredentials(); err != nil {
		m.logger.Error("installed credentials rejected", log.Err(err))
		m.revoke()
		return domain.StateCommissioning, nil
	}
	return domain.StateWaitForNetwork, nil
}

func (m *StateMachine) waitForNetwork(ctx context.Context) (domain.State, error) {
	m.status.SetStatus(domain.CloudDisconnected)

	m.linkReady.Reset()
	if !m.link.IsReady() {
		m.logger.Info("waiting for network")
		if err := m.linkReady.Wait(ctx); err != nil {
			return domain.StateWaitForNetwork, err
		}
	}

	creds := m.gate.Credentials()
	switch {
	case m.cfg.AltProtocol:
		return domain.StateInitAltClient, nil
	case !m.resolved && creds.Complete():
		return domain.StateResolveServer, nil
	case creds.Complete():
		return domain.StateConnecting, nil
	default:
		return domain.StateCommissioning, nil
	}
}

func (m *StateMachine) resolveServer(ctx context.Context) (domain.State, error) {
	if !m.link.IsReady() {
		return domain.StateWaitForNetwork, nil
	}
	if err := m.cloud.ResolveServer(ctx); err != nil {
		m.logger.Warn("resolve server failed", log.Err(err), log.Duration("retry_in", m.retry.Delay()))
		if err := m.retry.Wait(ctx); err != nil {
			return domain.StateResolveServer, err
		}
		return domain.StateResolveServer, nil
	}
	m.resolved = true
	return domain.StateConnecting, nil
}

func (m *StateMachine) connecting(ctx context.Context) (domain.State, error) {
	if !m.gate.Credentials().Complete() {
		return domain.StateCommissioning, nil
	}
	if !m.link.IsReady() {
		return domain.StateWaitForNetwork, nil
	}
	if !m.credsApplied || m.appliedGen != m.gate.Generation() {
		if err := m.applyCredentials(); err != nil {
			m.logger.Error("credentials rejected", log.Err(err))
			m.revoke()
			return domain.StateCommissioning, nil
		}
	}

	m.status.SetStatus(domain.CloudConnecting)
	if err := m.cloud.Connect(ctx); err != nil {
		m.status.SetStatus(domain.CloudConnectionError)
		m.logger.Warn("connect failed", log.Err(err), log.Duration("retry_in", m.retry.Delay()))
		if err := m.retry.Wait(ctx); err != nil {
			return domain.StateConnecting, err
		}
		return domain.StateConnecting, nil
	}

	m.status.SetStatus(domain.CloudConnected)
	gen := m.session.Next()
	m.logger.Info("cloud session established", log.Uint64("session", gen))
	return domain.StateInitSession, nil
}

func (m *StateMachine) initSession(ctx context.Context) (domain.State, error) {
	if !m.metadataPublished {
		if err := m.cloud.PublishPersistentMetadata(ctx, m.metadata()); err != nil {
			m.logger.Warn("publish device metadata failed", log.Err(err))
			return domain.StateDisconnecting, nil
		}
		m.metadataPublished = true
	}
	m.keepalive.Start(m.session.Current())
	return domain.StateStreaming, nil
}

func (m *StateMachine) streaming(ctx context.Context) (domain.State, error) {
	for {
		if !m.gate.Credentials().Commissioned || !m.cloud.IsConnected() {
			return domain.StateDisconnecting, nil
		}

		ev, err := m.queue.Dequeue(ctx)
		if err != nil {
			return domain.StateStreaming, err
		}

		switch ev.Kind {
		case domain.EventSensorSample:
			payload, err := m.samplePayload(ev)
			if err != nil {
				m.logger.Error("encode sample, dropped", log.Err(err))
				continue
			}
			if err := m.cloud.Publish(ctx, domain.TopicTelemetry, payload); err != nil {
				m.logger.Warn("publish sample failed", log.Err(err))
				return domain.StateDisconnecting, nil
			}
		case domain.EventKeepAliveTick:
			if m.discardStale(ev) {
				continue
			}
			payload, err := m.keepAlivePayload()
			if err != nil {
				m.logger.Error("encode keep-alive, dropped", log.Err(err))
				continue
			}
			if err := m.cloud.Publish(ctx, domain.TopicKeepAlive, payload); err != nil {
				m.logger.Warn("publish keep-alive failed", log.Err(err))
				return domain.StateDisconnecting, nil
			}
		case domain.EventSessionDisconnected, domain.EventDecommissionRequested:
			if m.discardStale(ev) {
				continue
			}
			m.logger.Info("leaving session", log.Stringer("event", ev.Kind))
			return domain.StateDisconnecting, nil
		default:
			m.logger.Debug("event ignored while streaming", log.Stringer("event", ev.Kind))
		}
	}
}

func (m *StateMachine) disconnecting(ctx context.Context) (domain.State, error) {
	m.session.End()
	m.keepalive.Stop()
	m.cloud.Disconnect()
	m.status.SetStatus(domain.CloudDisconnected)
	m.status.OnDisconnect()
	return domain.StateConnecting, nil
}

func (m *StateMachine) initAltClient(ctx context.Context) (domain.State, error) {
	if err := m.alt.Init(ctx); err != nil {
		m.logger.Warn("alternate client init failed", log.Err(err), log.Duration("retry_in", m.retry.Delay()))
		if err := m.retry.Wait(ctx); err != nil {
			return domain.StateInitAltClient, err
		}
		return domain.StateInitAltClient, nil
	}
	gen := m.session.Next()
	m.status.SetStatus(domain.CloudConnected)
	m.logger.Info("alternate session established", log.Uint64("session", gen))
	return domain.StateAltStreaming, nil
}

func (m *StateMachine) altStreaming(ctx context.Context) (domain.State, error) {
	for {
		if !m.link.IsReady() {
			return m.leaveAlt(), nil
		}

		ev, err := m.queue.Dequeue(ctx)
		if err != nil {
			return domain.StateAltStreaming, err
		}

		switch ev.Kind {
		case domain.EventSensorSample:
			payload, err := m.samplePayload(ev)
			if err != nil {
				m.logger.Error("encode sample, dropped", log.Err(err))
				continue
			}
			if err := m.alt.Publish(ctx, payload); err != nil {
				m.logger.Warn("alternate publish failed", log.Err(err))
				return m.leaveAlt(), nil
			}
		case domain.EventSessionDisconnected:
			if m.discardStale(ev) {
				continue
			}
			return m.leaveAlt(), nil
		default:
			m.logger.Debug("event ignored while alt streaming", log.Stringer("event", ev.Kind))
		}
	}
}

func (m *StateMachine) leaveAlt() domain.State {
	m.session.End()
	if err := m.alt.Close(); err != nil {
		m.logger.Warn("close alternate client", log.Err(err))
	}
	m.status.SetStatus(domain.CloudDisconnected)
	m.status.OnDisconnect()
	return domain.StateWaitForNetwork
}

// discardStale drops events from an earlier session.
func (m *StateMachine) discardStale(ev domain.Event) bool {
	if !m.session.Stale(ev.Session) {
		return false
	}
	m.logger.Debug("stale event discarded",
		log.Stringer("event", ev.Kind),
		log.Uint64("event_session", ev.Session),
		log.Uint64("session", m.session.Current()),
	)
	return true
}

func (m *StateMachine) applyCredentials() error {
	gen := m.gate.Generation()
	cert, key, err := m.gate.StoredCredentials()
	if err != nil {
		return err
	}
	if err := m.cloud.SetCredentials(cert, key); err != nil {
		return err
	}
	m.appliedGen = gen
	m.credsApplied = true
	return nil
}

func (m *StateMachine) revoke() {
	m.credsApplied = false
	if err := m.gate.Revoke(); err != nil {
		m.logger.Error("revoke credentials", log.Err(err))
	}
}

func (m *StateMachine) metadata() map[string]string {
	ls := m.link.Status()
	fields := make(map[string]string, len(m.cfg.Metadata)+4)
	for k, v := range m.cfg.Metadata {
		fields[k] = v
	}
	fields["radio_version"] = ls.FirmwareVersion
	fields["imei"] = ls.ID
	fields["iccid"] = ls.ICCID
	fields["radio_sn"] = ls.Serial
	return fields
}

type samplePayload struct {
	RSSI int             `json:"rssi"`
	SINR int             `json:"sinr"`
	TS   int64           `json:"ts"`
	Data json.RawMessage `json:"data,omitempty"`
	Raw  []byte          `json:"raw,omitempty"`
}

// samplePayload wraps a sensor reading with the current radio metrics.
// JSON readings are embedded as is; anything else is base64 encoded.
func (m *StateMachine) samplePayload(ev domain.Event) ([]byte, error) {
	ls := m.link.Status()
	p := samplePayload{RSSI: ls.SignalQuality, SINR: ls.SINR, TS: ev.At.Unix()}
	if json.Valid(ev.Payload) {
		p.Data = ev.Payload
	} else {
		p.Raw = ev.Payload
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode sample: %w", err)
	}
	return b, nil
}

type keepAlivePayload struct {
	RSSI   int   `json:"rssi"`
	SINR   int   `json:"sinr"`
	Uptime int64 `json:"uptime_s"`
}

func (m *StateMachine) keepAlivePayload() ([]byte, error) {
	ls := m.link.Status()
	b, err := json.Marshal(keepAlivePayload{
		RSSI:   ls.SignalQuality,
		SINR:   ls.SINR,
		Uptime: int64(time.Since(m.startedAt).Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("encode keep-alive: %w", err)
	}
	return b, nil
}
