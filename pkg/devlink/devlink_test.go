package devlink_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/pkg/devlink"
)

const waitTimeout = 3 * time.Second

func testConfig(t *testing.T) devlink.Config {
	t.Helper()
	cfg := devlink.DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.Endpoint = "wss://broker.example.com/mqtt"
	cfg.ClientID = "devlink-test"
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.WatchdogInterval = 10 * time.Millisecond
	return cfg
}

type env struct {
	d       *devlink.Devlink
	link    *fakeLink
	cloud   *fakeCloud
	store   *memStore
	handler *recordingHandler
}

func newEnv(t *testing.T, cfg devlink.Config, opts ...devlink.Option) *env {
	t.Helper()
	e := &env{
		link:    &fakeLink{},
		cloud:   &fakeCloud{},
		store:   newMemStore(),
		handler: &recordingHandler{},
	}
	e.link.ready.Store(true)
	opts = append([]devlink.Option{
		devlink.WithNetworkLink(e.link),
		devlink.WithCloudClient(e.cloud),
		devlink.WithCredentialStore(e.store),
		devlink.WithEventHandler(e.handler),
	}, opts...)

	d, err := devlink.New(cfg, opts...)
	require.NoError(t, err)
	e.d = d
	return e
}

func (e *env) start(t *testing.T) {
	t.Helper()
	require.NoError(t, e.d.Start(context.Background()))
	t.Cleanup(func() {
		if e.d.Status() == devlink.StateRunning {
			_ = e.d.Stop()
		}
	})
}

func (e *env) waitState(t *testing.T, want devlink.LifecycleState) {
	t.Helper()
	require.Eventually(t, func() bool { return e.d.LifecycleState() == want },
		waitTimeout, 5*time.Millisecond, "lifecycle state never reached %s (at %s)", want, e.d.LifecycleState())
}

func (e *env) commission(t *testing.T) {
	t.Helper()
	gate := e.d.Gate()
	// The gate opens once the commissioning handler has run.
	require.Eventually(t, func() bool {
		return gate.InstallCredential(devlink.CredentialCert, []byte("cert")) == nil
	}, waitTimeout, 5*time.Millisecond)
	require.NoError(t, gate.InstallCredential(devlink.CredentialKey, []byte("key")))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := devlink.DefaultConfig()
	cfg.StateDir = t.TempDir()

	_, err := devlink.New(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, devlink.ErrInvalidConfig))
}

func TestDevlink_CommissionAndStream(t *testing.T) {
	e := newEnv(t, testConfig(t))
	assert.Equal(t, devlink.StateStopped, e.d.Status())

	e.start(t)
	assert.Equal(t, devlink.StateRunning, e.d.Status())
	e.waitState(t, domain.StateCommissioning)
	assert.Equal(t, "not provisioned", e.d.Snapshot().CloudStatus)

	e.commission(t)
	e.waitState(t, domain.StateStreaming)
	assert.True(t, e.d.Credentials().Commissioned)
	assert.Equal(t, "connected", e.d.Snapshot().CloudStatus)

	require.True(t, e.d.PostSample([]byte(`{"temp_c":21.5}`)))
	require.Eventually(t, func() bool { return len(e.cloud.telemetry()) == 1 }, waitTimeout, 5*time.Millisecond)

	var body struct {
		RSSI int             `json:"rssi"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(e.cloud.telemetry()[0].payload, &body))
	assert.Equal(t, -70, body.RSSI)
	assert.JSONEq(t, `{"temp_c":21.5}`, string(body.Data))

	e.cloud.mu.Lock()
	md := e.cloud.metadata
	e.cloud.mu.Unlock()
	assert.Equal(t, "devlink-test", md["client_id"])
	assert.Equal(t, "imei-1", md["imei"])

	require.NoError(t, e.d.Stop())
	assert.Equal(t, devlink.StateStopped, e.d.Status())
	assert.False(t, e.d.PostSample([]byte("late")))
	assert.ErrorIs(t, e.d.Gate().Decommission(), devlink.ErrNotReady)
}

func TestDevlink_StatusFileWritten(t *testing.T) {
	cfg := testConfig(t)
	e := newEnv(t, cfg)
	e.start(t)
	e.waitState(t, domain.StateCommissioning)

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(filepath.Join(cfg.StateDir, "status.json"))
		if err != nil {
			return false
		}
		var s devlink.Snapshot
		return json.Unmarshal(b, &s) == nil && s.LifecycleState == "Commissioning"
	}, waitTimeout, 5*time.Millisecond)
}

func TestDevlink_BootsCommissioned(t *testing.T) {
	e := newEnv(t, testConfig(t))
	require.NoError(t, e.store.Store(domain.CredentialCert, []byte("cert")))
	require.NoError(t, e.store.Store(domain.CredentialKey, []byte("key")))
	require.NoError(t, e.store.StoreCommissioned(true))

	e.start(t)
	e.waitState(t, domain.StateStreaming)

	// Credentials are locked until decommissioned.
	err := e.d.Gate().InstallCredential(devlink.CredentialCert, []byte("other"))
	assert.Equal(t, -2, devlink.Code(err))

	require.NoError(t, e.d.Gate().Decommission())
	e.waitState(t, domain.StateCommissioning)
	assert.False(t, e.d.Credentials().Commissioned)
}

func TestDevlink_LinkLossWhileStreaming(t *testing.T) {
	e := newEnv(t, testConfig(t))
	e.start(t)
	e.waitState(t, domain.StateCommissioning)
	e.commission(t)
	e.waitState(t, domain.StateStreaming)

	e.link.set(false)
	e.waitState(t, domain.StateWaitForNetwork)
	assert.False(t, e.cloud.IsConnected())

	e.link.set(true)
	e.waitState(t, domain.StateStreaming)
}

func TestDevlink_StartStopErrors(t *testing.T) {
	e := newEnv(t, testConfig(t))
	assert.ErrorIs(t, e.d.Stop(), devlink.ErrNotRunning)

	e.start(t)
	assert.ErrorIs(t, e.d.Start(context.Background()), devlink.ErrAlreadyRunning)

	require.NoError(t, e.d.Stop())
	assert.ErrorIs(t, e.d.Stop(), devlink.ErrNotRunning)

	// A stopped instance can be started again.
	require.NoError(t, e.d.Start(context.Background()))
	e.waitState(t, domain.StateCommissioning)
	require.NoError(t, e.d.Stop())
}

func TestDevlink_Events(t *testing.T) {
	e := newEnv(t, testConfig(t))
	e.start(t)
	e.commission(t)
	e.waitState(t, domain.StateStreaming)
	require.NoError(t, e.d.Stop())

	h := e.handler
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []devlink.State{
		devlink.StateStarting, devlink.StateRunning, devlink.StateStopping, devlink.StateStopped,
	}, h.states)
	require.NotEmpty(t, h.transitions)
	assert.Equal(t, domain.StateStartup, h.transitions[0].From)
	assert.Contains(t, h.statuses, devlink.CloudStatus(domain.CloudConnected))
}

func TestDevlink_PluginsInitAndShutdownInOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	a := &recordingPlugin{name: "a", order: &order, mu: &mu}
	b := &recordingPlugin{name: "b", order: &order, mu: &mu}

	cfg := testConfig(t)
	e := newEnv(t, cfg, devlink.WithPlugin(a), devlink.WithPlugin(b))
	e.start(t)

	mu.Lock()
	pc := a.cfg
	mu.Unlock()
	assert.Equal(t, cfg.StateDir, pc.StateDir)
	assert.Equal(t, filepath.Join(cfg.StateDir, "provision"), pc.ProvisionDir)
	require.NotNil(t, pc.Commissioner)
	require.NotNil(t, pc.RegisterStatusSink)

	require.NoError(t, e.d.Stop())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"init:a", "init:b", "shutdown:b", "shutdown:a"}, order)
}

func TestDevlink_AltProtocol(t *testing.T) {
	cfg := testConfig(t)
	cfg.AltProtocol = true
	cfg.RedisAddr = "redis://127.0.0.1:1"

	alt := &fakeAlt{}
	e := newEnv(t, cfg, devlink.WithAltClient(alt))
	e.start(t)
	e.commission(t)
	e.waitState(t, domain.StateAltStreaming)

	require.True(t, e.d.PostSample([]byte(`{"n":1}`)))
	require.Eventually(t, func() bool { return alt.count() == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Empty(t, e.cloud.telemetry())
}

type fakeAlt struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (a *fakeAlt) Init(context.Context) error { return nil }

func (a *fakeAlt) Publish(_ context.Context, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.payloads = append(a.payloads, payload)
	return nil
}

func (a *fakeAlt) Close() error { return nil }

func (a *fakeAlt) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.payloads)
}
