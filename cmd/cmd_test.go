package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/fitlog/internal/models"
)

func TestParseKeyValues(t *testing.T) {
	pairs, err := parseKeyValues("tag", []string{"a=1", "b=x=y", "c="})
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"a", "1"}, {"b", "x=y"}, {"c", ""}}, pairs)

	_, err = parseKeyValues("tag", []string{"novalue"})
	assert.EqualError(t, err, "invalid tag format: novalue (expected key=value)")
	_, err = parseKeyValues("tag", []string{"=1"})
	assert.Error(t, err)
}

func TestProcessEscapeSequences(t *testing.T) {
	assert.Equal(t, "a\nb\tc", processEscapeSequences(`a\nb\tc`))
}

func valueCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	c.Flags().String("value", "", "")
	c.Flags().StringArray("param", []string{}, "")
	c.Flags().String("json", "", "")
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func TestValueFromFlags(t *testing.T) {
	v, err := valueFromFlags(valueCmd(t, "--value", "0.5"))
	require.NoError(t, err)
	assert.Equal(t, models.Float(0.5), v)

	v, err = valueFromFlags(valueCmd(t, "--value", ""))
	require.NoError(t, err)
	assert.Equal(t, models.String(""), v)

	v, err = valueFromFlags(valueCmd(t, "--param", "lr=0.1", "--param", "opt=adam", "--param", "batch=32"))
	require.NoError(t, err)
	m, ok := v.(*models.Map)
	require.True(t, ok)
	assert.Equal(t, []string{"lr", "opt", "batch"}, m.Keys())
	batch, _ := m.Get("batch")
	assert.True(t, batch.Equal(models.Int(32)))

	v, err = valueFromFlags(valueCmd(t, "--json", `{"dev": {"acc": 0.9}}`))
	require.NoError(t, err)
	val, ok := v.(models.Value)
	require.True(t, ok)
	assert.Equal(t, models.MapValue, val.Kind())

	_, err = valueFromFlags(valueCmd(t))
	assert.Error(t, err)
	_, err = valueFromFlags(valueCmd(t, "--value", "1", "--json", "{}"))
	assert.Error(t, err)
	_, err = valueFromFlags(valueCmd(t, "--json", "[1]"))
	assert.Error(t, err)
}

func TestWriteOutput(t *testing.T) {
	m := models.NewMap()
	m.Set("b", models.Int(1))
	m.Set("a", models.String("x"))

	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "json", m))
	assert.JSONEq(t, `{"b": 1, "a": "x"}`, buf.String())

	buf.Reset()
	require.NoError(t, writeOutput(&buf, "yaml", m))
	assert.Equal(t, "b: 1\na: x\n", buf.String())

	assert.Error(t, writeOutput(&buf, "xml", m))
}
