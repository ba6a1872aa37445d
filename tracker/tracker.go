// Package tracker records metrics, losses, best metrics and
// hyperparameters of an experiment run into a log directory.
//
// A Tracker is bound to at most one unfinished run. The run starts with
// Commit, which snapshots the code, or with SetLogDir, which creates the run
// directory on the first record. Finish marks the run complete; a run whose
// process exits without Finish is reported as aborted.
//
//	t := tracker.New(tracker.Options{})
//	if _, err := t.Commit(ctx, "train.py", "baseline"); err != nil {
//		return err
//	}
//	defer t.Finish()
//	t.AddHyperInFile("train.py")
//	t.AddLoss(0.31, step, tracker.WithName("train"), tracker.WithEpoch(epoch))
//
// A Tracker is not safe for concurrent use.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/imishinist/fitlog/internal/config"
	"github.com/imishinist/fitlog/internal/extract"
	"github.com/imishinist/fitlog/internal/logging"
	"github.com/imishinist/fitlog/internal/logwriter"
	"github.com/imishinist/fitlog/internal/models"
	"github.com/imishinist/fitlog/internal/registry"
)

var (
	ErrConfig             = registry.ErrConfig
	ErrNoActiveRun        = registry.ErrNoActiveRun
	ErrRunActive          = registry.ErrRunActive
	ErrRunFinished        = registry.ErrRunFinished
	ErrLogDirLocked       = registry.ErrLogDirLocked
	ErrCollisionExhausted = registry.ErrCollisionExhausted
	ErrNoProjectRoot      = registry.ErrNoProjectRoot
	ErrInvalidValue       = models.ErrInvalidValue
	ErrMissingStep        = models.ErrMissingStep
	ErrExtraction         = extract.ErrExtraction
	ErrWrite              = logwriter.ErrWrite
)

type Options struct {
	// Config supplies the default log directory. Defaults to the
	// .fitconfig of the project root.
	Config registry.ConfigSource
	// Snapshotter defaults to a git repository inside the project root.
	Snapshotter registry.Snapshotter
	Extractor   *extract.Extractor
	Logger      *logging.Logger
	Now         func() time.Time
}

type Tracker struct {
	reg       *registry.Registry
	extractor *extract.Extractor
	logger    *logging.Logger
	now       func() time.Time

	writer *logwriter.Writer
}

func New(opts Options) *Tracker {
	if opts.Config == nil {
		opts.Config = config.NewProjectConfig("")
	}
	if opts.Snapshotter == nil {
		opts.Snapshotter = registry.NewGitSnapshotter()
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.New()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default("tracker")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		reg: registry.New(registry.Options{
			Config:      opts.Config,
			Snapshotter: opts.Snapshotter,
			Now:         opts.Now,
			Logger:      opts.Logger,
		}),
		extractor: opts.Extractor,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// Commit snapshots the project containing anchor and starts a run in the
// project's log directory, or in the directory given to SetLogDir before.
func (t *Tracker) Commit(ctx context.Context, anchor, message string) (*models.Run, error) {
	run, err := t.reg.BeginRun(ctx, anchor, message)
	if err != nil {
		return nil, err
	}
	t.resetWriter()
	return run, nil
}

// SetLogDir starts a run in dir without a snapshot. The run directory is
// created by the first record.
func (t *Tracker) SetLogDir(dir string) error {
	if err := t.reg.SetLogDir(dir); err != nil {
		return err
	}
	t.resetWriter()
	return nil
}

// Attach continues an existing run directory.
func (t *Tracker) Attach(runDir string) (*models.Run, error) {
	run, err := t.reg.Attach(runDir)
	if err != nil {
		return nil, err
	}
	t.resetWriter()
	return run, nil
}

// Run returns the current run.
func (t *Tracker) Run() (*models.Run, error) {
	return t.reg.CurrentRun()
}

// Finish marks the current run complete. Repeated calls do nothing.
func (t *Tracker) Finish() error {
	t.resetWriter()
	return t.reg.Finish()
}

type recordOptions struct {
	name  string
	epoch *int64
}

// RecordOption qualifies a single record.
type RecordOption func(*recordOptions)

// WithName stores the value under name.
func WithName(name string) RecordOption {
	return func(o *recordOptions) { o.name = name }
}

// WithEpoch tags a metric or loss record with an epoch. Keyed kinds ignore it.
func WithEpoch(epoch int64) RecordOption {
	return func(o *recordOptions) { o.epoch = &epoch }
}

func (t *Tracker) AddMetric(value any, step int64, opts ...RecordOption) error {
	return t.add(models.KindMetric, value, &step, opts)
}

func (t *Tracker) AddLoss(value any, step int64, opts ...RecordOption) error {
	return t.add(models.KindLoss, value, &step, opts)
}

// AddBestMetric replaces the best value of each top-level name.
func (t *Tracker) AddBestMetric(value any, opts ...RecordOption) error {
	return t.add(models.KindBestMetric, value, nil, opts)
}

func (t *Tracker) AddHyper(value any, opts ...RecordOption) error {
	return t.add(models.KindHyper, value, nil, opts)
}

func (t *Tracker) AddOther(value any, opts ...RecordOption) error {
	return t.add(models.KindOther, value, nil, opts)
}

// AddHyperInFile records the assignments of the marked hyperparameter
// region of path. Values are kept as written.
func (t *Tracker) AddHyperInFile(path string) error {
	if _, err := t.reg.CurrentRun(); err != nil {
		return err
	}
	block, err := t.extractor.ExtractFile(path)
	if err != nil {
		return err
	}
	if block.Len() == 0 {
		return nil
	}
	return t.add(models.KindHyper, block.Map(), nil, nil)
}

// AddMetrics appends resolved bulk metrics to the metric stream in order.
// Every point is validated before the first one is written.
func (t *Tracker) AddMetrics(metrics []models.Metric) error {
	if _, err := t.reg.CurrentRun(); err != nil {
		return err
	}
	recs := make([]models.Record, 0, len(metrics))
	for i, m := range metrics {
		step := m.Step
		rec, err := models.Normalize(models.KindMetric, m.Values, &step, "", m.Epoch)
		if err != nil {
			return fmt.Errorf("metric %d: %w", i, err)
		}
		rec.Time = m.Timestamp
		recs = append(recs, rec)
	}
	w, err := t.open()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := w.Append(rec); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) add(kind models.Kind, value any, step *int64, opts []RecordOption) error {
	if _, err := t.reg.CurrentRun(); err != nil {
		return err
	}
	var o recordOptions
	for _, opt := range opts {
		opt(&o)
	}
	rec, err := models.Normalize(kind, value, step, o.name, o.epoch)
	if err != nil {
		return err
	}
	w, err := t.open()
	if err != nil {
		return err
	}
	return w.Append(rec)
}

// open allocates the run directory when needed and returns its writer.
func (t *Tracker) open() (*logwriter.Writer, error) {
	run, err := t.reg.Allocate()
	if err != nil {
		return nil, err
	}
	if t.writer != nil && t.writer.Dir() == run.Dir {
		return t.writer, nil
	}
	t.resetWriter()
	t.writer = logwriter.NewWriter(run.Dir).WithClock(t.now)
	t.logger.WithRunID(run.RunID).Debug("writer opened", "dir", run.Dir)
	return t.writer, nil
}

func (t *Tracker) resetWriter() {
	if t.writer == nil {
		return
	}
	if err := t.writer.Close(); err != nil {
		t.logger.WithError(err).Warn("failed to close run files")
	}
	t.writer = nil
}
