// Package jsonfile persists engine snapshots as JSON files under a data
// directory, one file per concern: users, workers (under the historical
// servers name) and stats.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fairyhunter13/textgen-horde/internal/usecase"
)

const (
	usersFile   = "users.json"
	serversFile = "servers.json"
	statsFile   = "stats.json"
)

// Store reads and writes the snapshot files. Writes go through a temp file
// plus rename, so a crash mid-write never truncates the previous snapshot.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes all three snapshot files.
func (s *Store) Save(snap usecase.Snapshot) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := writeJSON(filepath.Join(s.dir, serversFile), snap.Workers); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(s.dir, statsFile), snap.Stats); err != nil {
		return err
	}
	return writeJSON(filepath.Join(s.dir, usersFile), snap.Users)
}

// Load reads whatever snapshot files exist. Missing files load as empty
// state; a file that exists but does not parse is an error, since silently
// starting fresh would orphan every balance in it.
func (s *Store) Load() (usecase.Snapshot, error) {
	var snap usecase.Snapshot
	if err := readJSON(filepath.Join(s.dir, usersFile), &snap.Users); err != nil {
		return usecase.Snapshot{}, err
	}
	if err := readJSON(filepath.Join(s.dir, serversFile), &snap.Workers); err != nil {
		return usecase.Snapshot{}, err
	}
	if err := readJSON(filepath.Join(s.dir, statsFile), &snap.Stats); err != nil {
		return usecase.Snapshot{}, err
	}
	return snap, nil
}

// Exporter captures the current engine state for persisting.
type Exporter interface {
	ExportState() usecase.Snapshot
}

// RunPeriodic snapshots the engine on the interval until the context ends,
// then takes one final snapshot so a graceful shutdown loses nothing but the
// in-memory queue.
func (s *Store) RunPeriodic(ctx context.Context, src Exporter, interval time.Duration) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.Save(src.ExportState()); err != nil {
				slog.Error("final snapshot failed", slog.Any("error", err))
				return
			}
			slog.Info("snapshot service stopping")
			return
		case <-ticker.C:
			if err := s.Save(src.ExportState()); err != nil {
				slog.Error("periodic snapshot failed", slog.Any("error", err))
			}
		}
	}
}

func readJSON(path string, v any) error {
	// #nosec G304 -- snapshot paths are built from the configured data dir
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
