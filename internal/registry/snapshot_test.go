package registry

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/fitlog/internal/config"
)

func TestFindProjectRoot(t *testing.T) {
	root, script := newProject(t)

	got, err := FindProjectRoot(script)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	got, err = FindProjectRoot(filepath.Dir(script))
	require.NoError(t, err)
	assert.Equal(t, root, got)

	got, err = FindProjectRoot(root)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestFindProjectRoot_NestedProjectWins(t *testing.T) {
	root, _ := newProject(t)
	inner := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(inner, 0o755))
	_, err := config.WriteDefaultProjectFile(inner)
	require.NoError(t, err)

	got, err := FindProjectRoot(filepath.Join(inner, "run.py"))
	require.NoError(t, err)
	assert.Equal(t, inner, got)
}

func TestSubcommand(t *testing.T) {
	assert.Equal(t, "commit", subcommand([]string{"-c", "user.name=x", "-c", "user.email=y", "commit", "-m", "m"}))
	assert.Equal(t, "add", subcommand([]string{"add", "-A"}))
	assert.Equal(t, "", subcommand(nil))
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestGitSnapshotter(t *testing.T) {
	requireGit(t)
	root, script := newProject(t)
	ctx := context.Background()
	g := NewGitSnapshotter()

	created, err := g.Init(ctx, root)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = g.Init(ctx, root)
	require.NoError(t, err)
	assert.False(t, created)

	id, err := g.CurrentSnapshotID(ctx, root)
	require.NoError(t, err)
	assert.Empty(t, id)

	first, err := g.Snapshot(ctx, root, "first")
	require.NoError(t, err)
	assert.Len(t, first, 40)

	current, err := g.CurrentSnapshotID(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, first, current)

	// unchanged trees still get a snapshot of their own
	second, err := g.Snapshot(ctx, root, "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	require.NoError(t, os.WriteFile(script, []byte("# hyper\nlr = 0.2\n"), 0o644))
	third, err := g.Snapshot(ctx, root, "changed")
	require.NoError(t, err)
	assert.NotEqual(t, second, third)
}

func TestGitSnapshotter_IgnoresLogDir(t *testing.T) {
	requireGit(t)
	root, _ := newProject(t)
	ctx := context.Background()
	g := NewGitSnapshotter()

	logDir := filepath.Join(root, config.DefaultLogDirName, "log_20260304_050607")
	require.NoError(t, os.MkdirAll(logDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "meta.json"), []byte("{}"), 0o644))

	_, err := g.Snapshot(ctx, root, "")
	require.NoError(t, err)

	out, err := g.git(ctx, root, "ls-files")
	require.NoError(t, err)
	assert.Contains(t, out, "src/train.py")
	assert.NotContains(t, out, config.DefaultLogDirName+"/")
}

func TestGitSnapshotter_ExcludesConfiguredLogDir(t *testing.T) {
	requireGit(t)
	root, _ := newProject(t)
	ctx := context.Background()
	g := NewGitSnapshotter()

	logDir := filepath.Join(root, "runs", "exp")
	runDir := filepath.Join(logDir, "log_20260304_050607")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "meta.json"), []byte("{}"), 0o644))

	_, err := g.Snapshot(ctx, root, "first", logDir, t.TempDir())
	require.NoError(t, err)
	// the exclusion sticks without being passed again
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "metric.log"), []byte("{}\n"), 0o644))
	_, err = g.Snapshot(ctx, root, "second")
	require.NoError(t, err)

	out, err := g.git(ctx, root, "ls-files")
	require.NoError(t, err)
	assert.Contains(t, out, "src/train.py")
	assert.NotContains(t, out, "runs/")
}

func TestRelativeInside(t *testing.T) {
	root := t.TempDir()
	got := relativeInside(root, []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "a", "b"),
		root,
		filepath.Dir(root),
		filepath.Join(filepath.Dir(root), "elsewhere"),
	})
	assert.Equal(t, []string{"logs", "a/b"}, got)
}
