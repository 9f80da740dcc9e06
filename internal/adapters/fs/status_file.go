package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/bft-labs/devlink/internal/ports"
)

// StatusFileName is the snapshot file inside the state directory.
const StatusFileName = "status.json"

// StatusFileRepository implements ports.StatusRepository using a JSON file.
type StatusFileRepository struct {
	dir string
	mu  sync.Mutex
}

// NewStatusFileRepository creates a repository writing to dir.
func NewStatusFileRepository(dir string) *StatusFileRepository {
	return &StatusFileRepository{dir: dir}
}

// Load retrieves the last saved snapshot.
// Returns a zero snapshot and nil error if no status file exists.
func (r *StatusFileRepository) Load(ctx context.Context) (ports.Snapshot, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return ports.Snapshot{}, nil
		}
		return ports.Snapshot{}, err
	}

	var s ports.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return ports.Snapshot{}, err
	}
	return s, nil
}

// Save persists the snapshot atomically (temp file, then rename). Concurrent
// saves are serialized so the temp file is never shared.
func (r *StatusFileRepository) Save(ctx context.Context, s ports.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	path := r.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Path returns the full path to the status file.
func (r *StatusFileRepository) Path() string {
	return filepath.Join(r.dir, StatusFileName)
}
