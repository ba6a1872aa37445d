// Package registry binds a process to a single run and allocates run
// directories under a log directory.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"

	"github.com/imishinist/fitlog/internal/logging"
	"github.com/imishinist/fitlog/internal/logwriter"
	"github.com/imishinist/fitlog/internal/models"
	timeutils "github.com/imishinist/fitlog/internal/time"
)

var (
	// ErrConfig reports that no log directory could be resolved.
	ErrConfig = fmt.Errorf("no log directory configured: %w", errdefs.ErrFailedPrecondition)

	ErrNoActiveRun  = fmt.Errorf("no active run, call Commit or SetLogDir first: %w", errdefs.ErrFailedPrecondition)
	ErrRunActive    = fmt.Errorf("a run is already active in this process: %w", errdefs.ErrFailedPrecondition)
	ErrRunFinished  = fmt.Errorf("run is finished: %w", errdefs.ErrFailedPrecondition)
	ErrLogDirLocked = fmt.Errorf("log directory cannot change during a run: %w", errdefs.ErrFailedPrecondition)

	// ErrCollisionExhausted reports that every candidate run directory name
	// was already taken.
	ErrCollisionExhausted = fmt.Errorf("no free run directory name: %w", errdefs.ErrResourceExhausted)
)

// DefaultMaxAttempts bounds the suffix search for a free run directory.
const DefaultMaxAttempts = 100

// ConfigSource names the default log directory of a project root. An
// empty root asks for the process-wide default.
type ConfigSource interface {
	DefaultLogDir(projectRoot string) (string, error)
}

type Options struct {
	Config      ConfigSource
	Snapshotter Snapshotter
	Now         func() time.Time
	NewUUID     func() string
	MaxAttempts int
	Logger      *logging.Logger
}

// Registry holds the run of one process. It is not safe for concurrent use.
type Registry struct {
	config      ConfigSource
	snapshotter Snapshotter
	now         func() time.Time
	newUUID     func() string
	maxAttempts int
	logger      *logging.Logger

	root   string
	logDir string
	run    *models.Run
}

func New(opts Options) *Registry {
	r := &Registry{
		config:      opts.Config,
		snapshotter: opts.Snapshotter,
		now:         opts.Now,
		newUUID:     opts.NewUUID,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newUUID == nil {
		r.newUUID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = DefaultMaxAttempts
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	return r
}

// ResolveLogDir returns explicit when given, else the directory of the
// current run, else the configured default.
func (r *Registry) ResolveLogDir(explicit string) (string, error) {
	if explicit != "" {
		return absPath(explicit)
	}
	if r.logDir != "" {
		return r.logDir, nil
	}
	if r.config != nil {
		dir, err := r.config.DefaultLogDir(r.root)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrConfig, err)
		}
		if dir != "" {
			if !filepath.IsAbs(dir) && r.root != "" {
				dir = filepath.Join(r.root, dir)
			}
			return absPath(dir)
		}
	}
	return "", ErrConfig
}

// SetLogDir fixes the log directory and creates the run lazily: its
// directory is allocated on the first record.
func (r *Registry) SetLogDir(dir string) error {
	abs, err := r.ResolveLogDir(dir)
	if err != nil {
		return err
	}
	if r.active() {
		if r.run.LogDir == abs {
			return nil
		}
		return fmt.Errorf("%w: %s is in use, got %s", ErrLogDirLocked, r.run.LogDir, abs)
	}
	r.logDir = abs
	r.run = &models.Run{
		RunMeta: models.RunMeta{State: models.RunStateCreated},
		LogDir:  abs,
	}
	return nil
}

// BeginRun snapshots the project containing anchor and allocates a new run
// directory holding the run metadata.
func (r *Registry) BeginRun(ctx context.Context, anchor, message string) (*models.Run, error) {
	if r.active() && r.run.Allocated() {
		return nil, fmt.Errorf("%w: %s", ErrRunActive, r.run.RunID)
	}
	if r.snapshotter == nil {
		return nil, fmt.Errorf("%w: no snapshot capability", ErrConfig)
	}

	root, err := FindProjectRoot(anchor)
	if err != nil {
		return nil, err
	}
	r.root = root

	logDir := r.logDir
	if !r.active() {
		// a finished run does not pin the directory of the next one
		logDir = ""
	}
	if logDir == "" {
		r.logDir = ""
		if logDir, err = r.ResolveLogDir(""); err != nil {
			return nil, err
		}
	}

	snapshotID, err := r.snapshotter.Snapshot(ctx, root, message, logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot %s: %w", root, err)
	}

	run := &models.Run{
		RunMeta: models.RunMeta{
			SnapshotID: snapshotID,
			Message:    message,
			State:      models.RunStateCreated,
		},
		LogDir: logDir,
	}
	if err := r.allocate(run); err != nil {
		return nil, err
	}
	r.logDir = logDir
	r.run = run
	return run, nil
}

// CurrentRun returns the run of this process, allocated or not.
func (r *Registry) CurrentRun() (*models.Run, error) {
	if r.run == nil {
		return nil, ErrNoActiveRun
	}
	return r.run, nil
}

// Allocate returns the current run, creating its directory on first use.
func (r *Registry) Allocate() (*models.Run, error) {
	run, err := r.CurrentRun()
	if err != nil {
		return nil, err
	}
	if run.Finished() {
		return nil, fmt.Errorf("%w: %s", ErrRunFinished, run.RunID)
	}
	if !run.Allocated() {
		if err := r.allocate(run); err != nil {
			return nil, err
		}
	}
	return run, nil
}

// Attach makes an existing run directory the current run.
func (r *Registry) Attach(dir string) (*models.Run, error) {
	abs, err := absPath(dir)
	if err != nil {
		return nil, err
	}
	if r.active() && r.run.Allocated() && r.run.Dir != abs {
		return nil, fmt.Errorf("%w: %s", ErrRunActive, r.run.RunID)
	}
	meta, err := logwriter.ReadMeta(abs)
	if err != nil {
		return nil, err
	}
	r.run = &models.Run{RunMeta: meta, LogDir: filepath.Dir(abs), Dir: abs}
	r.logDir = r.run.LogDir
	return r.run, nil
}

// Finish writes the finish marker. Without a run, or for a run that is
// already finished, it does nothing.
func (r *Registry) Finish() error {
	if r.run == nil || r.run.Finished() {
		return nil
	}
	if !r.run.Allocated() {
		r.run.State = models.RunStateFinished
		return nil
	}

	finishedAt := r.now()
	meta := r.run.RunMeta
	meta.State = models.RunStateFinished
	meta.FinishedAt = &finishedAt
	if err := logwriter.WriteMeta(r.run.Dir, meta); err != nil {
		return fmt.Errorf("failed to write finish marker: %w", err)
	}
	r.run.RunMeta = meta
	r.logger.WithRunID(meta.RunID).Debug("run finished", "dir", r.run.Dir)
	return nil
}

func (r *Registry) active() bool {
	return r.run != nil && !r.run.Finished()
}

// allocate claims a fresh run directory. os.Mkdir fails when the name
// exists, which makes the claim atomic across processes sharing logDir.
func (r *Registry) allocate(run *models.Run) error {
	if err := os.MkdirAll(run.LogDir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create log directory %s: %w", logwriter.ErrWrite, run.LogDir, err)
	}

	startedAt := r.now()
	for n := 0; n < r.maxAttempts; n++ {
		id := timeutils.FormatRunID(startedAt, n)
		dir := filepath.Join(run.LogDir, id)
		err := os.Mkdir(dir, 0o755)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: failed to create run directory %s: %w", logwriter.ErrWrite, dir, err)
		}

		meta := run.RunMeta
		meta.RunID = id
		meta.UUID = r.newUUID()
		meta.StartedAt = startedAt
		meta.State = models.RunStateRunning
		if err := logwriter.WriteMeta(dir, meta); err != nil {
			os.Remove(dir)
			return err
		}
		run.RunMeta = meta
		run.Dir = dir
		r.logger.WithRunID(id).Debug("run started", "dir", dir, "snapshot_id", meta.SnapshotID)
		return nil
	}
	return fmt.Errorf("%w: %d names tried under %s", ErrCollisionExhausted, r.maxAttempts, run.LogDir)
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", p, err)
	}
	return abs, nil
}
