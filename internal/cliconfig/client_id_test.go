package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureClientID_GeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{StateDir: dir}

	if err := EnsureClientID(&cfg); err != nil {
		t.Fatalf("EnsureClientID() error = %v", err)
	}
	if !strings.HasPrefix(cfg.ClientID, "devlink-") {
		t.Errorf("ClientID = %q, want devlink- prefix", cfg.ClientID)
	}

	again := Config{StateDir: dir}
	if err := EnsureClientID(&again); err != nil {
		t.Fatalf("EnsureClientID() second call error = %v", err)
	}
	if again.ClientID != cfg.ClientID {
		t.Errorf("ClientID = %q, want persisted %q", again.ClientID, cfg.ClientID)
	}
}

func TestEnsureClientID_KeepsExplicit(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{StateDir: dir, ClientID: "tracker-7"}

	if err := EnsureClientID(&cfg); err != nil {
		t.Fatalf("EnsureClientID() error = %v", err)
	}
	if cfg.ClientID != "tracker-7" {
		t.Errorf("ClientID = %q, want tracker-7", cfg.ClientID)
	}
	if FileExists(filepath.Join(dir, ClientIDFileName)) {
		t.Error("client id file written for explicit id")
	}
}

func TestEnsureClientID_ReadsExisting(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ClientIDFileName), []byte("devlink-abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := Config{StateDir: dir}
	if err := EnsureClientID(&cfg); err != nil {
		t.Fatalf("EnsureClientID() error = %v", err)
	}
	if cfg.ClientID != "devlink-abc" {
		t.Errorf("ClientID = %q, want devlink-abc", cfg.ClientID)
	}
}
