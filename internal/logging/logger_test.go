package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSONCarriesComponentAndRun(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, slog.LevelInfo, "json", "tracker")

	l.WithRunID("log_20260101_000000").WithError(errors.New("boom")).Info("record appended")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tracker", entry["component"])
	assert.Equal(t, "log_20260101_000000", entry["run_id"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "record appended", entry["msg"])
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, slog.LevelWarn, "text", "cli")

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "component=cli")
}

func TestWithDuration(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, slog.LevelInfo, "json", "export")

	l.WithDuration(1500 * time.Microsecond).Info("exported")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, 1.5, entry["duration_ms"])
}

func TestWithError_Nil(t *testing.T) {
	l := Discard()
	assert.Same(t, l, l.WithError(nil))
}
