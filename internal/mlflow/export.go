package mlflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/imishinist/fitlog/internal/logwriter"
	"github.com/imishinist/fitlog/internal/models"
)

// Tags identifying the local run on the server.
const (
	TagRunID      = "fitlog.run_id"
	TagUUID       = "fitlog.uuid"
	TagSnapshotID = "fitlog.snapshot_id"
	TagRunDir     = "fitlog.run_dir"
)

// Tracking is the part of a tracking server an export needs. *Client
// implements it.
type Tracking interface {
	CreateRun(ctx context.Context, cfg *RunConfig) (*RunInfo, error)
	LogParams(ctx context.Context, runID string, params []Param) error
	LogMetrics(ctx context.Context, runID string, metrics []Metric) error
	UpdateRun(ctx context.Context, runID string, status RunStatus, endTime time.Time) error
}

var _ Tracking = (*Client)(nil)

// ExportPlan is everything an export sends, computed without a server.
type ExportPlan struct {
	Run     RunConfig
	Params  []Param
	Metrics []Metric
	Status  RunStatus
	EndTime time.Time
	// Skipped counts leaves that are not finite numbers and have no place
	// among MLflow metrics.
	Skipped int
}

// BuildExportPlan maps a local run onto MLflow. Hyper and other summaries
// become parameters prefixed with their kind; best metrics become single
// points prefixed "best."; metric and loss streams become step series
// prefixed with their kind. A run without the finish marker is exported
// as KILLED.
func BuildExportPlan(rec *logwriter.RunRecord, experimentID string) *ExportPlan {
	runName := rec.Meta.RunID
	plan := &ExportPlan{
		Run: RunConfig{
			RunName:   &runName,
			StartTime: rec.Meta.StartedAt,
			Tags: map[string]string{
				TagRunID:  rec.Meta.RunID,
				TagUUID:   rec.Meta.UUID,
				TagRunDir: rec.Dir,
			},
		},
		Status: RunStatusKilled,
	}
	if experimentID != "" {
		plan.Run.ExperimentID = &experimentID
	}
	if rec.Meta.SnapshotID != "" {
		plan.Run.Tags[TagSnapshotID] = rec.Meta.SnapshotID
	}
	if rec.Meta.Message != "" {
		message := rec.Meta.Message
		plan.Run.Description = &message
	}
	if rec.State == models.RunStateFinished {
		plan.Status = RunStatusFinished
		if rec.Meta.FinishedAt != nil {
			plan.EndTime = *rec.Meta.FinishedAt
		}
	}

	for _, kind := range []models.Kind{models.KindHyper, models.KindOther} {
		for _, e := range rec.Summary(kind).Flatten() {
			plan.Params = append(plan.Params, Param{Key: string(kind) + "." + e.Key, Value: truncateParamValue(e.Value.String())})
		}
	}

	bestAt := plan.EndTime
	if bestAt.IsZero() {
		bestAt = rec.Meta.StartedAt
	}
	for _, e := range rec.BestMetric.Flatten() {
		plan.addMetric("best."+e.Key, e.Value, bestAt, 0)
	}
	for _, kind := range []models.Kind{models.KindMetric, models.KindLoss} {
		for _, entry := range rec.Stream(kind) {
			for _, e := range entry.Value.Flatten() {
				plan.addMetric(string(kind)+"."+e.Key, e.Value, entry.Time, entry.Step)
			}
		}
	}
	return plan
}

func (p *ExportPlan) addMetric(key string, v models.Value, at time.Time, step int64) {
	f, ok := v.Number()
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		p.Skipped++
		return
	}
	p.Metrics = append(p.Metrics, Metric{Key: key, Value: f, Timestamp: at, Step: step})
}

// ExportRun creates the server run and sends the plan. A run created before
// a failure is marked FAILED.
func ExportRun(ctx context.Context, t Tracking, plan *ExportPlan) (*RunInfo, error) {
	info, err := t.CreateRun(ctx, &plan.Run)
	if err != nil {
		return nil, err
	}

	if err := send(ctx, t, info.RunID, plan); err != nil {
		if uerr := t.UpdateRun(ctx, info.RunID, RunStatusFailed, time.Time{}); uerr != nil {
			return info, fmt.Errorf("%w (marking run failed: %v)", err, uerr)
		}
		return info, err
	}
	info.Status = string(plan.Status)
	return info, nil
}

func send(ctx context.Context, t Tracking, runID string, plan *ExportPlan) error {
	if len(plan.Params) > 0 {
		if err := t.LogParams(ctx, runID, plan.Params); err != nil {
			return err
		}
	}
	if len(plan.Metrics) > 0 {
		if err := t.LogMetrics(ctx, runID, plan.Metrics); err != nil {
			return err
		}
	}
	return t.UpdateRun(ctx, runID, plan.Status, plan.EndTime)
}
