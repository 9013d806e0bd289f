// Package snapshot persists a layer's items (and, for the global layer, its
// dense-index blob) to a versioned JSON file, written atomically via
// temp-file-then-rename so readers never observe a partial file (spec.md
// §4.1.4, §5). Transient write failures are retried with cenkalti/backoff,
// mirroring the retry-on-flush pattern the teacher repo's database layer
// uses for its own I/O.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cordlesssteve/layered-memory/internal/memtypes"
)

const currentVersion = 1

// Record is the on-disk snapshot format: {version, saved_at, items[],
// dense-index blob} (spec.md §4.1.4).
type Record struct {
	Version    int                      `json:"version"`
	SavedAt    time.Time                `json:"saved_at"`
	Items      []*memtypes.MemoryItem   `json:"items"`
	VectorBlob json.RawMessage          `json:"vector_blob,omitempty"`
}

// Store reads and writes a single layer's snapshot file.
type Store struct {
	path string
}

// New returns a Store backed by path (e.g. "<data_dir>/<layer>/items.json").
func New(path string) *Store {
	return &Store{path: path}
}

// Save atomically writes items (and, if non-nil, a vector-index blob) to the
// snapshot file: write to a sibling temp file, fsync, then rename over the
// target (spec.md §5 "Snapshots are written to a temp file then renamed").
// Transient failures (e.g. a momentarily full disk) are retried with
// exponential backoff before surfacing memtypes.ErrPersistenceFailed.
func (s *Store) Save(items []*memtypes.MemoryItem, vectorBlob json.RawMessage, now time.Time) error {
	record := Record{Version: currentVersion, SavedAt: now, Items: items, VectorBlob: vectorBlob}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: marshal snapshot: %v", memtypes.ErrPersistenceFailed, err)
	}

	op := func() error { return writeAtomic(s.path, data) }

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("%w: %v", memtypes.ErrPersistenceFailed, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Load reads the snapshot file. A missing file is not an error: Load returns
// an empty record. Read and parse failures are returned; the caller logs a
// warning and starts the layer empty (spec.md §7 "Snapshot loader errors at
// startup are non-fatal").
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Record{Version: currentVersion, Items: nil}, nil
		}
		return nil, fmt.Errorf("%w: read snapshot: %v", memtypes.ErrPersistenceFailed, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: unmarshal snapshot: %v", memtypes.ErrPersistenceFailed, err)
	}
	return &record, nil
}

// Backup writes a timestamped copy of the current snapshot file and returns
// an opaque backup id (a UTC timestamp that names the backup file), per
// spec.md §4.1.4 backup()/restore().
func (s *Store) Backup(now time.Time) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			data = []byte(`{"version":1,"items":[]}`)
		} else {
			return "", fmt.Errorf("%w: read for backup: %v", memtypes.ErrPersistenceFailed, err)
		}
	}

	id := now.UTC().Format("20060102T150405.000000000Z")
	backupPath := s.backupPath(id)
	if err := writeAtomic(backupPath, data); err != nil {
		return "", fmt.Errorf("%w: write backup: %v", memtypes.ErrPersistenceFailed, err)
	}
	return id, nil
}

// Restore atomically replaces the live snapshot file with backup id's
// contents. The caller is responsible for rebuilding in-memory indices
// from the restored Record (spec.md §4.1.4).
func (s *Store) Restore(id string) (*Record, error) {
	data, err := os.ReadFile(s.backupPath(id))
	if err != nil {
		return nil, fmt.Errorf("%w: read backup %s: %v", memtypes.ErrNotFound, id, err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return nil, fmt.Errorf("%w: restore backup: %v", memtypes.ErrPersistenceFailed, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: unmarshal restored snapshot: %v", memtypes.ErrPersistenceFailed, err)
	}
	return &record, nil
}

func (s *Store) backupPath(id string) string {
	return filepath.Join(filepath.Dir(s.path), fmt.Sprintf("%s.backup-%s.json", filepath.Base(s.path), id))
}
