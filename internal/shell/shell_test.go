package shell

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/devlink/internal/adapters/sqlite"
	"github.com/bft-labs/devlink/internal/app"
	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/internal/ports"
	"github.com/bft-labs/devlink/pkg/log"
)

type install struct {
	kind domain.CredentialKind
	data string
}

type fakeGate struct {
	mu             sync.Mutex
	installs       []install
	identities     map[domain.CredentialKind]string
	decommissioned int
	installErr     error
	decommErr      error
}

func (g *fakeGate) InstallCredential(kind domain.CredentialKind, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.installErr != nil {
		return g.installErr
	}
	g.installs = append(g.installs, install{kind, string(data)})
	return nil
}

func (g *fakeGate) StoreIdentity(kind domain.CredentialKind, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.identities == nil {
		g.identities = map[domain.CredentialKind]string{}
	}
	g.identities[kind] = string(data)
	return nil
}

func (g *fakeGate) Decommission() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.decommErr != nil {
		return g.decommErr
	}
	g.decommissioned++
	return nil
}

func (g *fakeGate) snapshot() []install {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]install(nil), g.installs...)
}

func TestUnescape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{`a\nb`, "a\nb"},
		{`BEGIN\sCERT`, "BEGIN CERT"},
		{`-----BEGIN\sKEY-----\nabc\n-----END\sKEY-----`, "-----BEGIN KEY-----\nabc\n-----END KEY-----"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Unescape(tt.in), tt.in)
	}
}

func TestExec(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		gateErr  error
		wantCode int
		wantOut  string
	}{
		{name: "set cert", line: `set_cert A\nB`, wantCode: domain.CodeOK, wantOut: "stored cert (3 bytes)"},
		{name: "set key", line: "set_key K", wantCode: domain.CodeOK, wantOut: "stored key"},
		{name: "not ready", line: "set_cert X", gateErr: domain.ErrNotReady, wantCode: domain.CodeNotReady},
		{name: "disallowed", line: "set_key X", gateErr: domain.ErrCommissionDisallowed, wantCode: domain.CodeCommissionDisallowed},
		{name: "too large", line: "set_cert X", gateErr: domain.ErrCredTooLarge, wantCode: domain.CodeCredTooLarge},
		{name: "storage failure", line: "set_cert X", gateErr: errors.New("disk full"), wantCode: domain.CodeStorage},
		{name: "unknown credential kind", line: "set_cred password hunter2", wantCode: domain.CodeUnknownCredential},
		{name: "unknown command", line: "format_disk", wantCode: CodeUnknownCommand, wantOut: "unknown command"},
		{name: "blank line", line: "   ", wantCode: domain.CodeOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			g := &fakeGate{installErr: tt.gateErr}
			sh := New(g, nil, &out, nil)

			assert.Equal(t, tt.wantCode, sh.Exec(tt.line))
			if tt.wantOut != "" {
				assert.Contains(t, out.String(), tt.wantOut)
			}
		})
	}
}

func TestExec_UnescapesCredential(t *testing.T) {
	g := &fakeGate{}
	sh := New(g, nil, &bytes.Buffer{}, nil)

	require.Equal(t, domain.CodeOK, sh.Exec(`set_cert -----BEGIN\sCERTIFICATE-----\nMIIB\n-----END\sCERTIFICATE-----`))
	require.Len(t, g.snapshot(), 1)
	assert.Equal(t, domain.CredentialCert, g.installs[0].kind)
	assert.Equal(t, "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----", g.installs[0].data)
}

func TestExec_SetCredRoutesKind(t *testing.T) {
	g := &fakeGate{}
	sh := New(g, nil, &bytes.Buffer{}, nil)

	require.Equal(t, domain.CodeOK, sh.Exec("set_cred key abc"))
	require.Len(t, g.snapshot(), 1)
	assert.Equal(t, domain.CredentialKey, g.installs[0].kind)
}

func TestExec_SetCredIdentity(t *testing.T) {
	tests := []struct {
		line string
		kind domain.CredentialKind
		want string
	}{
		{"set_cred endpoint iot.example.com", domain.CredentialEndpoint, "iot.example.com"},
		{"set_cred client_id gw-0042", domain.CredentialClientID, "gw-0042"},
		{`set_cred root_ca -----BEGIN\sCERTIFICATE-----\nCA`, domain.CredentialRootCA, "-----BEGIN CERTIFICATE-----\nCA"},
		{"set_cred endpoint", domain.CredentialEndpoint, ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			g := &fakeGate{}
			sh := New(g, nil, &bytes.Buffer{}, nil)
			require.Equal(t, domain.CodeOK, sh.Exec(tt.line))
			assert.Empty(t, g.snapshot())
			assert.Equal(t, tt.want, g.identities[tt.kind])
		})
	}
}

func TestExec_SetCredIdentityThroughGate(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), sqlite.DBFileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := log.NewNoopLogger()
	gate := app.NewCommissioningGate(app.GateConfig{}, store, app.NewEventQueue(8, logger), &app.Session{}, logger)
	gate.MarkReady()
	gate.AllowCommissioning()

	var out bytes.Buffer
	sh := New(gate, nil, &out, nil)
	require.Equal(t, domain.CodeOK, sh.Exec("set_cred endpoint iot.example.com"), out.String())
	require.Equal(t, domain.CodeOK, sh.Exec("set_cred client_id gw-0042"), out.String())
	require.Equal(t, domain.CodeOK, sh.Exec(`set_cred root_ca CA\nPEM`), out.String())

	got, err := store.Read(domain.CredentialEndpoint)
	require.NoError(t, err)
	assert.Equal(t, "iot.example.com", string(got))
	got, err = store.Read(domain.CredentialRootCA)
	require.NoError(t, err)
	assert.Equal(t, "CA\nPEM", string(got))

	assert.Equal(t, domain.Credentials{}, gate.Credentials())
	assert.True(t, gate.Allowed())
}

func TestExec_Reset(t *testing.T) {
	g := &fakeGate{}
	sh := New(g, nil, &bytes.Buffer{}, nil)
	assert.Equal(t, domain.CodeOK, sh.Exec("reset"))
	assert.Equal(t, 1, g.decommissioned)

	g.decommErr = domain.ErrNotReady
	assert.Equal(t, domain.CodeNotReady, sh.Exec("reset"))
}

func TestExec_RebootAndBootloader(t *testing.T) {
	var modes []ports.ResetMode
	r := ports.ResetFunc(func(m ports.ResetMode) { modes = append(modes, m) })
	sh := New(&fakeGate{}, r, &bytes.Buffer{}, nil)

	assert.Equal(t, domain.CodeOK, sh.Exec("reboot"))
	assert.Equal(t, domain.CodeOK, sh.Exec("bootloader"))
	assert.Equal(t, []ports.ResetMode{ports.ResetNormal, ports.ResetBootloader}, modes)
}

func TestRun_ProcessesLinesUntilEOF(t *testing.T) {
	g := &fakeGate{}
	var out bytes.Buffer
	sh := New(g, nil, &out, nil)

	in := strings.NewReader("set_cert C\nset_key K\nreset\n")
	require.NoError(t, sh.Run(context.Background(), in))

	assert.Len(t, g.snapshot(), 2)
	assert.Equal(t, 1, g.decommissioned)
}

type blockingReader struct{ done chan struct{} }

func (r blockingReader) Read([]byte) (int, error) {
	<-r.done
	return 0, context.Canceled
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := blockingReader{done: make(chan struct{})}
	defer close(r.done)

	errc := make(chan error, 1)
	go func() { errc <- New(&fakeGate{}, nil, &bytes.Buffer{}, nil).Run(ctx, r) }()

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
