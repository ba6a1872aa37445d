// Package logwriter persists the records of a run directory.
//
// A run directory holds:
//
//	meta.json          run metadata, rewritten atomically; state FINISHED is the finish marker
//	metric.log         one JSON entry per line, append only
//	loss.log           one JSON entry per line, append only
//	best_metric.json   keyed summary, replaced atomically on every update
//	hyper.json         keyed summary
//	other.json         keyed summary
//
// A stream line is complete only once its trailing newline is written;
// readers ignore a final line without one.
package logwriter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/containerd/errdefs"

	"github.com/imishinist/fitlog/internal/models"
)

// ErrWrite reports a failed durable write.
var ErrWrite = fmt.Errorf("log write failed: %w", errdefs.ErrUnavailable)

const MetaFile = "meta.json"

// StreamFile names the append-only file of a series kind.
func StreamFile(kind models.Kind) string {
	return string(kind) + ".log"
}

// SummaryFile names the keyed summary file of a keyed kind.
func SummaryFile(kind models.Kind) string {
	return string(kind) + ".json"
}

// WriteFileAtomic replaces path with data: the bytes go to a temporary file
// in the same directory, which is synced and renamed over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file for %s: %w", ErrWrite, path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to write %s: %w", ErrWrite, tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to sync %s: %w", ErrWrite, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to close %s: %w", ErrWrite, tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to chmod %s: %w", ErrWrite, tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to rename %s: %w", ErrWrite, tmpPath, err)
	}
	syncDir(dir)
	return nil
}

// syncDir makes a rename durable where the platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

func WriteMeta(dir string, meta models.RunMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run metadata: %w", err)
	}
	return WriteFileAtomic(filepath.Join(dir, MetaFile), append(data, '\n'))
}

func ReadMeta(dir string) (models.RunMeta, error) {
	var meta models.RunMeta
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return meta, fmt.Errorf("failed to read run metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse run metadata in %s: %w", dir, err)
	}
	return meta, nil
}

// IsRunDir reports whether dir carries run metadata.
func IsRunDir(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, MetaFile))
	return err == nil
}

func readSummary(path string) (*models.Map, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return models.NewMap(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	m := models.NewMap()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return m, nil
}
