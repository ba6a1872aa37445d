package mlflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/databricks/databricks-sdk-go/service/ml"
)

const (
	tagRunName     = "mlflow.runName"
	tagDescription = "mlflow.note.content"
)

func (c *Client) CreateRun(ctx context.Context, cfg *RunConfig) (*RunInfo, error) {
	experimentID := c.config.ExperimentID
	if cfg.ExperimentID != nil {
		experimentID = *cfg.ExperimentID
	}
	if experimentID == "" {
		return nil, fmt.Errorf("experiment ID must be provided")
	}

	startTime := cfg.StartTime
	if startTime.IsZero() {
		startTime = time.Now()
	}
	runName := "run-" + startTime.Format("2006-01-02-15-04-05")
	if cfg.RunName != nil {
		runName = *cfg.RunName
	}

	keys := make([]string, 0, len(cfg.Tags))
	for key := range cfg.Tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	tags := make([]ml.RunTag, 0, len(keys)+2)
	for _, key := range keys {
		tags = append(tags, ml.RunTag{Key: key, Value: cfg.Tags[key]})
	}
	tags = append(tags, ml.RunTag{Key: tagRunName, Value: runName})

	var description string
	if cfg.Description != nil && *cfg.Description != "" {
		description = *cfg.Description
		tags = append(tags, ml.RunTag{Key: tagDescription, Value: description})
	}

	resp, err := c.client.Experiments.CreateRun(ctx, ml.CreateRun{
		ExperimentId: experimentID,
		RunName:      runName,
		StartTime:    startTime.UnixMilli(),
		Tags:         tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return &RunInfo{
		RunID:        resp.Run.Info.RunId,
		ExperimentID: experimentID,
		RunName:      runName,
		Status:       string(RunStatusRunning),
		StartTime:    startTime,
		Tags:         cfg.Tags,
		Description:  description,
	}, nil
}

// UpdateRun sets the run status. Terminal statuses record endTime, or now
// when endTime is zero.
func (c *Client) UpdateRun(ctx context.Context, runID string, status RunStatus, endTime time.Time) error {
	var mlStatus ml.UpdateRunStatus
	switch status {
	case RunStatusRunning:
		mlStatus = ml.UpdateRunStatusRunning
	case RunStatusFinished:
		mlStatus = ml.UpdateRunStatusFinished
	case RunStatusFailed:
		mlStatus = ml.UpdateRunStatusFailed
	case RunStatusKilled:
		mlStatus = ml.UpdateRunStatusKilled
	default:
		return fmt.Errorf("unknown run status: %s", status)
	}

	updateRun := ml.UpdateRun{
		RunId:  runID,
		Status: mlStatus,
	}
	if status != RunStatusRunning {
		if endTime.IsZero() {
			endTime = time.Now()
		}
		updateRun.EndTime = endTime.UnixMilli()
	}

	if _, err := c.client.Experiments.UpdateRun(ctx, updateRun); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

func (c *Client) GetRun(ctx context.Context, runID string) (*RunInfo, error) {
	resp, err := c.client.Experiments.GetRun(ctx, ml.GetRunRequest{
		RunId: runID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run := resp.Run
	tags := make(map[string]string)
	for _, tag := range run.Data.Tags {
		tags[tag.Key] = tag.Value
	}

	info := &RunInfo{
		RunID:        run.Info.RunId,
		ExperimentID: run.Info.ExperimentId,
		Status:       string(run.Info.Status),
		StartTime:    time.UnixMilli(run.Info.StartTime),
		Tags:         tags,
		RunName:      tags[tagRunName],
		Description:  tags[tagDescription],
	}
	if run.Info.EndTime != 0 {
		endTime := time.UnixMilli(run.Info.EndTime)
		info.EndTime = &endTime
	}
	return info, nil
}
