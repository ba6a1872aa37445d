package models

import "time"

// MetricPoint is one entry of a bulk metrics file. Missing steps are derived
// from the timestamp or the position in the file.
type MetricPoint struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Step      *int64     `json:"step,omitempty"`
	Epoch     *int64     `json:"epoch,omitempty"`
	Values    *Map       `json:"values"`
}

type MetricsFile struct {
	Metrics []MetricPoint `json:"metrics"`
}

// Metric is a MetricPoint with its step resolved.
type Metric struct {
	Values    *Map
	Timestamp time.Time
	Step      int64
	Epoch     *int64
}

type TimeConfig struct {
	Resolution string // 1m, 5m, 1h
	Alignment  string // floor, ceil, round
	StepMode   string // auto, timestamp, sequence
}

// ParametersFile is the file shape accepted by `log hyper --from-file`.
type ParametersFile struct {
	Parameters *Map `json:"parameters"`
}
