package logwriter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/fitlog/internal/models"
)

func writeRun(t *testing.T, logDir, name string, state models.RunState) string {
	t.Helper()
	dir := filepath.Join(logDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, WriteMeta(dir, models.RunMeta{
		RunID:     name,
		UUID:      "0190c7c4-0000-7000-8000-000000000000",
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		State:     state,
	}))
	return dir
}

func TestReadRun_MergesArtifacts(t *testing.T) {
	dir := writeRun(t, t.TempDir(), "log_20260102_030405", models.RunStateRunning)

	w := NewWriter(dir)
	defer w.Close()
	require.NoError(t, w.Append(record(t, models.KindLoss, 1.0, i64(1), "loss", nil)))
	require.NoError(t, w.Append(record(t, models.KindMetric, 0.5, i64(1), "acc", nil)))
	require.NoError(t, w.Append(record(t, models.KindBestMetric, 0.5, nil, "acc", nil)))
	require.NoError(t, w.Append(record(t, models.KindHyper, 32, nil, "batch", nil)))

	rec, err := ReadRun(dir)
	require.NoError(t, err)

	assert.Equal(t, "log_20260102_030405", rec.Meta.RunID)
	assert.Equal(t, models.RunStateAborted, rec.State)
	assert.Len(t, rec.Loss, 1)
	assert.Len(t, rec.Stream(models.KindMetric), 1)
	assert.Equal(t, []string{"acc"}, rec.Summary(models.KindBestMetric).Keys())
	assert.Equal(t, []string{"batch"}, rec.Hyper.Keys())
	assert.Equal(t, 0, rec.Other.Len())
}

func TestReadRun_FinishedState(t *testing.T) {
	dir := writeRun(t, t.TempDir(), "log_1", models.RunStateFinished)

	rec, err := ReadRun(dir)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateFinished, rec.State)
	assert.Empty(t, rec.Metric)
}

func TestReadRun_NotARun(t *testing.T) {
	_, err := ReadRun(t.TempDir())
	assert.Error(t, err)
}

func TestListRuns(t *testing.T) {
	logDir := t.TempDir()
	writeRun(t, logDir, "log_20260102_030405_1", models.RunStateRunning)
	writeRun(t, logDir, "log_20260102_030405", models.RunStateFinished)
	require.NoError(t, os.MkdirAll(filepath.Join(logDir, "not_a_run"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "index.db"), nil, 0o644))

	dirs, err := ListRuns(logDir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(logDir, "log_20260102_030405"),
		filepath.Join(logDir, "log_20260102_030405_1"),
	}, dirs)
}

func TestDeriveState(t *testing.T) {
	assert.Equal(t, models.RunStateFinished, DeriveState(models.RunMeta{State: models.RunStateFinished}))
	assert.Equal(t, models.RunStateAborted, DeriveState(models.RunMeta{State: models.RunStateRunning}))
	assert.Equal(t, models.RunStateAborted, DeriveState(models.RunMeta{State: models.RunStateCreated}))
}
