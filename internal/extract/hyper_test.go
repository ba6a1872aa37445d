package extract

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extract(t *testing.T, src string) (Block, error) {
	t.Helper()
	return New().Extract(strings.NewReader(src))
}

func TestExtractFile_Demo(t *testing.T) {
	b, err := New().ExtractFile(filepath.Join("testdata", "demo.py"))
	require.NoError(t, err)

	assert.Equal(t, []string{"lr", "char_embed", "word_embed", "hidden_size", "optimizer"}, b.Names)
	assert.Equal(t, map[string]string{
		"lr":          "0.01",
		"char_embed":  "300",
		"word_embed":  "300",
		"hidden_size": "100",
		"optimizer":   `"adam#w"`,
	}, b.Values)
}

func TestExtract_FirstBindingWins(t *testing.T) {
	src := "#####hyper\nlr = 0.01  # note\nlr = 0.02\nbatch = 32\n#####hyper\n"

	b, err := extract(t, src)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"lr": "0.01", "batch": "32"}, b.Values)
	assert.Equal(t, []string{"lr", "batch"}, b.Names)
}

func TestExtract_FirstBindingWinsWithinChain(t *testing.T) {
	b, err := extract(t, "#hyper\na = 1\nb = a = 2\n#hyper\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, b.Values)
}

func TestExtract_OnlyFirstRegionIsRead(t *testing.T) {
	src := strings.Join([]string{
		"##hyper",
		"a = 1",
		"##hyper",
		"b = 2",
		"##hyper",
		"c = 3",
		"##hyper",
	}, "\n")

	b, err := extract(t, src)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1"}, b.Values)
}

func TestExtract_MarkerIsWhitespaceTolerant(t *testing.T) {
	b, err := extract(t, "   ########hyper   \n\tx = 1\n\t#### hyper\t\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x": "1"}, b.Values)
}

func TestExtract_SkipsLinesWithoutAssignment(t *testing.T) {
	src := strings.Join([]string{
		"#hyper",
		"print(lr)",
		"",
		"# lr = 5",
		"if a == b: pass",
		"count += 1",
		"walrus := 3",
		"lr: float = 0.1",
		"a, b = 1, 2",
		"empty =",
		"#hyper",
	}, "\n")

	b, err := extract(t, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"lr"}, b.Names)
	assert.Equal(t, "0.1", b.Values["lr"])
}

func TestExtract_EmptyRegion(t *testing.T) {
	b, err := extract(t, "#hyper\n#hyper\n")
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, b.Map().Len())
}

func TestExtract_MissingMarkers(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no marker", "lr = 1\n"},
		{"single marker", "#hyper\nlr = 1\n"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extract(t, tt.src)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrExtraction)
			assert.True(t, errdefs.IsInvalidArgument(err))
		})
	}
}

func TestExtract_CustomMarker(t *testing.T) {
	e := &Extractor{Marker: regexp.MustCompile(`^//+\s*params$`)}
	b, err := e.Extract(strings.NewReader("// params\nx = 1\n//// params\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x": "1"}, b.Values)
}

func TestBlock_MapKeepsOrder(t *testing.T) {
	b, err := extract(t, "#hyper\nz = 1\na = 2\n#hyper\n")
	require.NoError(t, err)

	m := b.Map()
	assert.Equal(t, []string{"z", "a"}, m.Keys())
	v, _ := m.Get("z")
	s, ok := v.Str()
	require.True(t, ok)
	assert.Equal(t, "1", s)
}

func TestExtractFile_NotFound(t *testing.T) {
	_, err := New().ExtractFile(filepath.Join(t.TempDir(), "missing.py"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
