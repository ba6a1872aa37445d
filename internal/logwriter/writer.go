package logwriter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/imishinist/fitlog/internal/models"
)

// Entry is one line of a metric or loss stream.
type Entry struct {
	Step  int64       `json:"step" yaml:"step"`
	Epoch *int64      `json:"epoch,omitempty" yaml:"epoch,omitempty"`
	Value *models.Map `json:"value" yaml:"value"`
	Time  time.Time   `json:"time" yaml:"time"`
}

// Writer appends records to one run directory. It is meant for a single
// goroutine; every Append is durable when it returns.
type Writer struct {
	dir       string
	now       func() time.Time
	streams   map[models.Kind]*os.File
	summaries map[models.Kind]*models.Map
}

func NewWriter(dir string) *Writer {
	return &Writer{
		dir:       dir,
		now:       time.Now,
		streams:   map[models.Kind]*os.File{},
		summaries: map[models.Kind]*models.Map{},
	}
}

// WithClock replaces the clock used to stamp records without a time.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

func (w *Writer) Dir() string {
	return w.dir
}

// Append persists rec: series kinds are appended to their stream, keyed
// kinds are merged into their summary by top-level name.
func (w *Writer) Append(rec models.Record) error {
	if !rec.Kind.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownKind, rec.Kind)
	}
	if rec.Value == nil {
		return fmt.Errorf("%w: record without value", models.ErrInvalidValue)
	}
	if rec.Kind.IsSeries() {
		return w.appendStream(rec)
	}
	return w.upsertSummary(rec)
}

func (w *Writer) appendStream(rec models.Record) error {
	if rec.Step == nil {
		return fmt.Errorf("%w: %s record", models.ErrMissingStep, rec.Kind)
	}
	ts := rec.Time
	if ts.IsZero() {
		ts = w.now()
	}
	line, err := json.Marshal(Entry{
		Step:  *rec.Step,
		Epoch: rec.Epoch,
		Value: rec.Value,
		Time:  ts.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", rec.Kind, err)
	}
	line = append(line, '\n')

	f, err := w.stream(rec.Kind)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: failed to stat %s: %w", ErrWrite, f.Name(), err)
	}
	// One write call per record; a failed write is cut back so that the
	// stream never keeps a partial line.
	if _, err := f.Write(line); err != nil {
		f.Truncate(info.Size())
		return fmt.Errorf("%w: failed to append to %s: %w", ErrWrite, f.Name(), err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: failed to sync %s: %w", ErrWrite, f.Name(), err)
	}
	return nil
}

func (w *Writer) stream(kind models.Kind) (*os.File, error) {
	if f, ok := w.streams[kind]; ok {
		return f, nil
	}
	path := filepath.Join(w.dir, StreamFile(kind))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrWrite, path, err)
	}
	if err := trimTornTail(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: failed to repair %s: %w", ErrWrite, path, err)
	}
	w.streams[kind] = f
	return f, nil
}

// trimTornTail cuts f back to its last newline. A line without one was
// never acknowledged, and appending after it would fuse two records.
func trimTornTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	buf := make([]byte, 4096)
	end := size
	for end > 0 {
		n := int64(len(buf))
		if n > end {
			n = end
		}
		chunk := buf[:n]
		if _, err := f.ReadAt(chunk, end-n); err != nil {
			return err
		}
		if end == size && chunk[n-1] == '\n' {
			return nil
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			return truncateSync(f, end-n+int64(i)+1)
		}
		end -= n
	}
	return truncateSync(f, 0)
}

func truncateSync(f *os.File, size int64) error {
	if err := f.Truncate(size); err != nil {
		return err
	}
	return f.Sync()
}

func (w *Writer) upsertSummary(rec models.Record) error {
	cur, err := w.summary(rec.Kind)
	if err != nil {
		return err
	}
	next := cur.Clone()
	next.Merge(rec.Value)

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s summary: %w", rec.Kind, err)
	}
	if err := WriteFileAtomic(filepath.Join(w.dir, SummaryFile(rec.Kind)), append(data, '\n')); err != nil {
		return err
	}
	w.summaries[rec.Kind] = next
	return nil
}

func (w *Writer) summary(kind models.Kind) (*models.Map, error) {
	if m, ok := w.summaries[kind]; ok {
		return m, nil
	}
	m, err := readSummary(filepath.Join(w.dir, SummaryFile(kind)))
	if err != nil {
		return nil, err
	}
	w.summaries[kind] = m
	return m, nil
}

// Summary returns a copy of the current keyed summary of kind.
func (w *Writer) Summary(kind models.Kind) (*models.Map, error) {
	if kind.IsSeries() {
		return nil, fmt.Errorf("%s is not a keyed kind", kind)
	}
	m, err := w.summary(kind)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// Close releases the open stream files.
func (w *Writer) Close() error {
	var errs []error
	for kind, f := range w.streams {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s stream: %w", kind, err))
		}
		delete(w.streams, kind)
	}
	return errors.Join(errs...)
}
