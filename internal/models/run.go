package models

import "time"

type RunState string

const (
	RunStateCreated  RunState = "CREATED"
	RunStateRunning  RunState = "RUNNING"
	RunStateFinished RunState = "FINISHED"
	// RunStateAborted is never written. Readers derive it for runs that
	// lack the finish marker.
	RunStateAborted RunState = "ABORTED"
)

// RunMeta is the metadata persisted as the first artifact of a run directory.
type RunMeta struct {
	RunID      string     `json:"run_id" yaml:"run_id"`
	UUID       string     `json:"uuid" yaml:"uuid"`
	SnapshotID string     `json:"snapshot_id,omitempty" yaml:"snapshot_id,omitempty"`
	Message    string     `json:"message,omitempty" yaml:"message,omitempty"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	State      RunState   `json:"state" yaml:"state"`
}

// Run is one experiment invocation bound to a log directory.
type Run struct {
	RunMeta
	// LogDir is the absolute parent directory shared by all runs.
	LogDir string
	// Dir is the run subdirectory. It stays empty until the run is allocated.
	Dir string
}

func (r *Run) Allocated() bool {
	return r.Dir != ""
}

func (r *Run) Finished() bool {
	return r.State == RunStateFinished
}
