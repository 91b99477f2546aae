package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// markerSuffix is appended to the database path to name the marker file.
const markerSuffix = ".state.toml"

// Marker records that a full index finished. The CLI writes it only after a
// successful run, so its absence means the next invocation must index fully.
type Marker struct {
	InitialIndex bool      `json:"initial_index" toml:"initial_index"`
	RunID        string    `json:"run_id,omitempty" toml:"run_id"`
	CompletedAt  time.Time `json:"completed_at,omitzero" toml:"completed_at"`
	Folders      int       `json:"folders" toml:"folders"`
	Files        int       `json:"files" toml:"files"`
}

// MarkerPath returns the marker file path for a database path.
func MarkerPath(dbPath string) string {
	return dbPath + markerSuffix
}

// ReadMarker loads the marker at path. A missing file yields the zero Marker.
func ReadMarker(path string) (Marker, error) {
	var m Marker

	_, err := toml.DecodeFile(path, &m)
	if errors.Is(err, fs.ErrNotExist) {
		return Marker{}, nil
	}

	if err != nil {
		return Marker{}, fmt.Errorf("cache: reading marker %s: %w", path, err)
	}

	return m, nil
}

// WriteMarker saves m atomically (write-to-temp + rename).
func WriteMarker(path string, m Marker) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".marker-*.tmp")
	if err != nil {
		return fmt.Errorf("cache: creating marker temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := toml.NewEncoder(tmp).Encode(m); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: encoding marker: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: syncing marker: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: closing marker: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("cache: renaming marker: %w", err)
	}

	success = true

	return nil
}
