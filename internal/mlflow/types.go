package mlflow

import "time"

type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
	RunStatusKilled   RunStatus = "KILLED"
)

type RunConfig struct {
	ExperimentID *string
	RunName      *string
	Description  *string
	Tags         map[string]string
	// StartTime defaults to now.
	StartTime time.Time
}

type RunInfo struct {
	RunID        string            `json:"run_id" yaml:"run_id"`
	ExperimentID string            `json:"experiment_id" yaml:"experiment_id"`
	RunName      string            `json:"run_name" yaml:"run_name"`
	Status       string            `json:"status" yaml:"status"`
	StartTime    time.Time         `json:"start_time" yaml:"start_time"`
	EndTime      *time.Time        `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Tags         map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
}

type Param struct {
	Key   string
	Value string
}

type Metric struct {
	Key       string
	Value     float64
	Timestamp time.Time
	Step      int64
}
