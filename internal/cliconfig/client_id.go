package cliconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ClientIDFileName is the file under the state dir holding the generated client id.
const ClientIDFileName = "client_id"

// EnsureClientID fills cfg.ClientID when it is unset. A previously generated
// id is read back from the state dir; otherwise a new one is created and
// persisted so the device keeps its identity across restarts.
func EnsureClientID(cfg *Config) error {
	if cfg.ClientID != "" {
		return nil
	}
	p := filepath.Join(cfg.StateDir, ClientIDFileName)

	b, err := os.ReadFile(p)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(b)); id != "" {
			cfg.ClientID = id
			return nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("read client id: %w", err)
	}

	id := "devlink-" + uuid.NewString()
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(p, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("write client id: %w", err)
	}
	cfg.ClientID = id
	return nil
}
