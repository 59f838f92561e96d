package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hazmate/pkg/collector"
	"hazmate/pkg/logger"
)

const version = 1

// file is the on-disk envelope around a run snapshot
type file struct {
	Version  int                 `json:"version"`
	Snapshot *collector.Snapshot `json:"snapshot"`
}

// Manager persists run snapshots so an interrupted collection can resume.
// Saves are atomic: the snapshot is written to a temp file, synced and
// renamed over the previous one, so a crash mid-save never corrupts the
// last good checkpoint.
type Manager struct {
	path   string
	logger logger.Logger
}

// NewManager creates a checkpoint manager writing to the given path
func NewManager(path string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
	}

	return &Manager{path: path, logger: log}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.path
}

// Save writes the snapshot to disk atomically. Implements
// collector.Checkpointer.
func (m *Manager) Save(snap *collector.Snapshot) error {
	tempPath := m.path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(&file{Version: version, Snapshot: snap}); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("checkpoint saved", map[string]interface{}{
		"path":      m.path,
		"collected": len(snap.SeenIDs),
		"pages":     snap.PagesFetched,
	})

	return nil
}

// Load reads the last saved snapshot. Returns (nil, nil) when no checkpoint
// exists.
func (m *Manager) Load() (*collector.Snapshot, error) {
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer f.Close()

	var envelope file
	if err := json.NewDecoder(f).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if envelope.Version != version {
		return nil, fmt.Errorf("unsupported checkpoint version %d", envelope.Version)
	}
	if envelope.Snapshot == nil {
		return nil, fmt.Errorf("checkpoint carries no snapshot")
	}

	m.logger.InfoWithFields("checkpoint loaded", map[string]interface{}{
		"path":      m.path,
		"collected": len(envelope.Snapshot.SeenIDs),
		"saved_at":  envelope.Snapshot.SavedAt,
		"age":       time.Since(envelope.Snapshot.SavedAt).String(),
	})

	return envelope.Snapshot, nil
}

// Delete removes the checkpoint, forcing the next run to start fresh
func (m *Manager) Delete() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}
