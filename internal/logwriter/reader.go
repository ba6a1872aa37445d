package logwriter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/imishinist/fitlog/internal/models"
)

// RunRecord is the merged view of one run directory, the shape consumed by
// tables and curve plots.
type RunRecord struct {
	Dir        string          `json:"dir" yaml:"dir"`
	Meta       models.RunMeta  `json:"meta" yaml:"meta"`
	State      models.RunState `json:"state" yaml:"state"`
	BestMetric *models.Map     `json:"best_metric" yaml:"best_metric"`
	Hyper      *models.Map     `json:"hyper" yaml:"hyper"`
	Other      *models.Map     `json:"other" yaml:"other"`
	Metric     []Entry         `json:"metric" yaml:"metric"`
	Loss       []Entry         `json:"loss" yaml:"loss"`
}

// Summary returns the keyed summary of kind.
func (r *RunRecord) Summary(kind models.Kind) *models.Map {
	switch kind {
	case models.KindBestMetric:
		return r.BestMetric
	case models.KindHyper:
		return r.Hyper
	case models.KindOther:
		return r.Other
	}
	return nil
}

// Stream returns the entries of a series kind.
func (r *RunRecord) Stream(kind models.Kind) []Entry {
	switch kind {
	case models.KindMetric:
		return r.Metric
	case models.KindLoss:
		return r.Loss
	}
	return nil
}

// DeriveState maps stored metadata to the state shown downstream. Without
// the finish marker a run counts as aborted; a run still in progress looks
// the same from the outside.
func DeriveState(meta models.RunMeta) models.RunState {
	if meta.State == models.RunStateFinished {
		return models.RunStateFinished
	}
	return models.RunStateAborted
}

// ReadRun loads every artifact of the run directory dir.
func ReadRun(dir string) (*RunRecord, error) {
	meta, err := ReadMeta(dir)
	if err != nil {
		return nil, err
	}

	rec := &RunRecord{
		Dir:   dir,
		Meta:  meta,
		State: DeriveState(meta),
	}
	for _, kind := range []models.Kind{models.KindBestMetric, models.KindHyper, models.KindOther} {
		m, err := readSummary(filepath.Join(dir, SummaryFile(kind)))
		if err != nil {
			return nil, err
		}
		switch kind {
		case models.KindBestMetric:
			rec.BestMetric = m
		case models.KindHyper:
			rec.Hyper = m
		case models.KindOther:
			rec.Other = m
		}
	}
	if rec.Metric, err = ReadStreamFile(filepath.Join(dir, StreamFile(models.KindMetric))); err != nil {
		return nil, err
	}
	if rec.Loss, err = ReadStreamFile(filepath.Join(dir, StreamFile(models.KindLoss))); err != nil {
		return nil, err
	}
	return rec, nil
}

// ReadStreamFile reads a stream file; a missing file is an empty stream.
func ReadStreamFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	entries, err := ReadStream(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// ReadStream decodes entries in append order. A trailing line without its
// newline is an unfinished append and is skipped.
func ReadStream(r io.Reader) ([]Entry, error) {
	entries := []Entry{}
	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read stream: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("failed to parse line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
}

// ListRuns returns the run directories directly under logDir, sorted by name.
func ListRuns(logDir string) ([]string, error) {
	items, err := os.ReadDir(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", logDir, err)
	}
	var dirs []string
	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		dir := filepath.Join(logDir, item.Name())
		if IsRunDir(dir) {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
