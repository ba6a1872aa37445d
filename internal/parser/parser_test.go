package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/fitlog/internal/models"
)

func TestParseJSONParams(t *testing.T) {
	m, err := ParseJSONParams(strings.NewReader(`{
		"parameters": {"lr": 0.01, "batch": 32, "optimizer": {"name": "adam", "beta": 0.9}}
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"lr", "batch", "optimizer"}, m.Keys())
	batch, _ := m.Get("batch")
	assert.True(t, batch.Equal(models.Int(32)))
	opt, _ := m.Get("optimizer")
	sub, ok := opt.Map()
	require.True(t, ok)
	assert.Equal(t, []string{"name", "beta"}, sub.Keys())
}

func TestParseJSONParams_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing": `{"other": {}}`,
		"array":   `{"parameters": {"layers": [1, 2]}}`,
		"bool":    `{"parameters": {"debug": true}}`,
		"null":    `{"parameters": {"seed": null}}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJSONParams(strings.NewReader(input))
			require.Error(t, err)
			assert.True(t, errdefs.IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestParseYAMLParams(t *testing.T) {
	m, err := ParseYAMLParams(strings.NewReader(`
parameters:
  lr: 0.01
  batch: 32
  name: resnet
  optimizer:
    name: adam
    beta: .inf
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"lr", "batch", "name", "optimizer"}, m.Keys())

	lr, _ := m.Get("lr")
	assert.True(t, lr.Equal(models.Float(0.01)))
	batch, _ := m.Get("batch")
	assert.True(t, batch.Equal(models.Int(32)))
	opt, _ := m.Get("optimizer")
	sub, _ := opt.Map()
	beta, _ := sub.Get("beta")
	f, _ := beta.Number()
	assert.True(t, f > 1e308)
}

func TestParseYAMLParams_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing":    "other: 1\n",
		"int key":    "parameters:\n  1: one\n",
		"sequence":   "parameters:\n  layers: [1, 2]\n",
		"bool":       "parameters:\n  debug: true\n",
		"null":       "parameters:\n  seed: ~\n",
		"not a map":  "parameters: 3\n",
		"bool key":   "parameters:\n  true: x\n",
		"null value": "parameters:\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseYAMLParams(strings.NewReader(input))
			require.Error(t, err)
			assert.True(t, errdefs.IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestParseYAMLParams_Alias(t *testing.T) {
	m, err := ParseYAMLParams(strings.NewReader(`
base: &base
  lr: 0.1
parameters:
  stage1: *base
`))
	require.NoError(t, err)
	stage, _ := m.Get("stage1")
	sub, ok := stage.Map()
	require.True(t, ok)
	assert.Equal(t, []string{"lr"}, sub.Keys())
}

func TestParseMetrics(t *testing.T) {
	jsonInput := `{"metrics": [
		{"timestamp": "2026-01-02T03:04:05Z", "values": {"acc": 0.5, "loss": 1}},
		{"step": 7, "epoch": 1, "values": {"acc": 0.6}}
	]}`
	yamlInput := `
metrics:
  - timestamp: 2026-01-02T03:04:05Z
    values:
      acc: 0.5
      loss: 1
  - step: 7
    epoch: 1
    values:
      acc: 0.6
`
	parsers := map[string]func() (*models.MetricsFile, error){
		"json": func() (*models.MetricsFile, error) { return ParseJSONMetrics(strings.NewReader(jsonInput)) },
		"yaml": func() (*models.MetricsFile, error) { return ParseYAMLMetrics(strings.NewReader(yamlInput)) },
	}
	for name, parse := range parsers {
		t.Run(name, func(t *testing.T) {
			f, err := parse()
			require.NoError(t, err)
			require.Len(t, f.Metrics, 2)

			first := f.Metrics[0]
			require.NotNil(t, first.Timestamp)
			assert.True(t, first.Timestamp.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
			assert.Nil(t, first.Step)
			assert.Equal(t, []string{"acc", "loss"}, first.Values.Keys())

			second := f.Metrics[1]
			require.NotNil(t, second.Step)
			assert.Equal(t, int64(7), *second.Step)
			require.NotNil(t, second.Epoch)
			assert.Equal(t, int64(1), *second.Epoch)
		})
	}
}

func TestParseFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	m, err := ParseParamsFile(write("params.yml", "parameters:\n  lr: 0.1\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	f, err := ParseMetricsFile(write("metrics.json", `{"metrics": [{"values": {"acc": 1}}]}`))
	require.NoError(t, err)
	assert.Len(t, f.Metrics, 1)

	_, err = ParseParamsFile(write("params.csv", "lr,0.1\n"))
	assert.ErrorContains(t, err, "unsupported file format")

	_, err = ParseMetricsFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
