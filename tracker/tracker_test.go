package tracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/fitlog/internal/config"
	"github.com/imishinist/fitlog/internal/logging"
	"github.com/imishinist/fitlog/internal/logwriter"
	"github.com/imishinist/fitlog/internal/models"
)

var fixedTime = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

type stubSnapshotter struct{ n int }

func (s *stubSnapshotter) Snapshot(context.Context, string, string, ...string) (string, error) {
	s.n++
	return fmt.Sprintf("stub-%d", s.n), nil
}

func (s *stubSnapshotter) CurrentSnapshotID(context.Context, string) (string, error) {
	return "", nil
}

func newTracker() *Tracker {
	return New(Options{
		Config:      config.NewProjectConfig(""),
		Snapshotter: &stubSnapshotter{},
		Logger:      logging.Discard(),
		Now:         func() time.Time { return fixedTime },
	})
}

const trainScript = `import torch

# hyper
lr = 0.01  # note
lr = 0.02
batch = 32
# hyper

for step in range(10):
    pass
`

func newProject(t *testing.T) (root, script string) {
	t.Helper()
	root = t.TempDir()
	_, err := config.WriteDefaultProjectFile(root)
	require.NoError(t, err)
	script = filepath.Join(root, "train.py")
	require.NoError(t, os.WriteFile(script, []byte(trainScript), 0o644))
	return root, script
}

func readRun(t *testing.T, tr *Tracker) *logwriter.RunRecord {
	t.Helper()
	run, err := tr.Run()
	require.NoError(t, err)
	require.True(t, run.Allocated())
	rec, err := logwriter.ReadRun(run.Dir)
	require.NoError(t, err)
	return rec
}

func TestAddBeforeRunFails(t *testing.T) {
	tr := newTracker()
	cwd := t.TempDir()

	calls := map[string]func() error{
		"metric":      func() error { return tr.AddMetric(0.1, 1, WithName("acc")) },
		"loss":        func() error { return tr.AddLoss(0.1, 1, WithName("train")) },
		"best_metric": func() error { return tr.AddBestMetric(0.9, WithName("acc")) },
		"hyper":       func() error { return tr.AddHyper(map[string]any{"lr": 0.1}) },
		"other":       func() error { return tr.AddOther("x", WithName("note")) },
		"hyper_file":  func() error { return tr.AddHyperInFile(filepath.Join(cwd, "missing.py")) },
		"metrics":     func() error { return tr.AddMetrics(nil) },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			assert.ErrorIs(t, err, ErrNoActiveRun)
			assert.True(t, errdefs.IsFailedPrecondition(err))
		})
	}

	entries, err := os.ReadDir(cwd)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommitAndRecord(t *testing.T) {
	root, script := newProject(t)
	tr := newTracker()

	run, err := tr.Commit(context.Background(), script, "baseline")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, config.DefaultLogDirName), run.LogDir)
	assert.Equal(t, "stub-1", run.SnapshotID)

	for _, step := range []int64{5, 1, 3} {
		require.NoError(t, tr.AddMetric(float64(step)/10, step, WithName("acc"), WithEpoch(2)))
	}
	require.NoError(t, tr.AddLoss(map[string]any{"train": 0.5, "dev": 0.7}, 1))
	require.NoError(t, tr.AddBestMetric(0.5, WithName("acc")))
	require.NoError(t, tr.AddBestMetric(0.8, WithName("acc")))
	require.NoError(t, tr.AddHyperInFile(script))
	require.NoError(t, tr.AddOther("resnet", WithName("arch")))

	rec := readRun(t, tr)
	require.Len(t, rec.Metric, 3)
	assert.Equal(t, int64(5), rec.Metric[0].Step)
	assert.Equal(t, int64(1), rec.Metric[1].Step)
	assert.Equal(t, int64(3), rec.Metric[2].Step)
	require.NotNil(t, rec.Metric[0].Epoch)
	assert.Equal(t, int64(2), *rec.Metric[0].Epoch)

	require.Len(t, rec.Loss, 1)
	assert.Equal(t, []string{"dev", "train"}, rec.Loss[0].Value.Keys())

	assert.Equal(t, 1, rec.BestMetric.Len())
	acc, ok := rec.BestMetric.Get("acc")
	require.True(t, ok)
	assert.True(t, acc.Equal(models.Float(0.8)))

	assert.Equal(t, []string{"lr", "batch"}, rec.Hyper.Keys())
	lr, _ := rec.Hyper.Get("lr")
	assert.True(t, lr.Equal(models.String("0.01")))

	arch, _ := rec.Other.Get("arch")
	assert.True(t, arch.Equal(models.String("resnet")))

	assert.Equal(t, models.RunStateAborted, rec.State)
	require.NoError(t, tr.Finish())
	require.NoError(t, tr.Finish())
	assert.Equal(t, models.RunStateFinished, readRun(t, tr).State)

	assert.ErrorIs(t, tr.AddMetric(1, 10, WithName("acc")), ErrRunFinished)
}

func TestSetLogDir_CreatesRunOnFirstRecord(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")
	tr := newTracker()

	require.NoError(t, tr.SetLogDir(logDir))
	_, err := os.Stat(logDir)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, tr.AddHyper(64, WithName("batch")))
	dirs, err := logwriter.ListRuns(logDir)
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "log_20260506_070809", filepath.Base(dirs[0]))
}

func TestInvalidValueWritesNothing(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")
	tr := newTracker()
	require.NoError(t, tr.SetLogDir(logDir))

	err := tr.AddHyper(map[int]any{1: "x"})
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.True(t, errdefs.IsInvalidArgument(err))

	err = tr.AddMetric([]float64{1, 2}, 1, WithName("acc"))
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = os.Stat(logDir)
	assert.True(t, os.IsNotExist(err))
}

func TestAddHyperInFile_NoMarker(t *testing.T) {
	dir := t.TempDir()
	tr := newTracker()
	require.NoError(t, tr.SetLogDir(filepath.Join(dir, "logs")))

	path := filepath.Join(dir, "plain.py")
	require.NoError(t, os.WriteFile(path, []byte("lr = 0.1\n"), 0o644))

	err := tr.AddHyperInFile(path)
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestAddMetrics(t *testing.T) {
	tr := newTracker()
	require.NoError(t, tr.SetLogDir(filepath.Join(t.TempDir(), "logs")))

	values := func(acc float64) *models.Map {
		m := models.NewMap()
		m.Set("acc", models.Float(acc))
		return m
	}
	ts := fixedTime.Add(-time.Hour)
	require.NoError(t, tr.AddMetrics([]models.Metric{
		{Values: values(0.1), Timestamp: ts, Step: 0},
		{Values: values(0.2), Timestamp: ts.Add(time.Minute), Step: 1},
	}))

	rec := readRun(t, tr)
	require.Len(t, rec.Metric, 2)
	assert.True(t, rec.Metric[0].Time.Equal(ts))
	assert.Equal(t, int64(1), rec.Metric[1].Step)

	err := tr.AddMetrics([]models.Metric{{Values: values(0.3), Step: 2}, {Step: 3}})
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Len(t, readRun(t, tr).Metric, 2)
}

func TestAttach(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")
	first := newTracker()
	require.NoError(t, first.SetLogDir(logDir))
	require.NoError(t, first.AddLoss(0.9, 0, WithName("train")))
	run, err := first.Run()
	require.NoError(t, err)

	second := newTracker()
	_, err = second.Attach(run.Dir)
	require.NoError(t, err)
	require.NoError(t, second.AddLoss(0.8, 1, WithName("train")))
	require.NoError(t, second.Finish())

	rec, err := logwriter.ReadRun(run.Dir)
	require.NoError(t, err)
	assert.Len(t, rec.Loss, 2)
	assert.Equal(t, models.RunStateFinished, rec.State)
}
