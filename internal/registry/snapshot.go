package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"

	"github.com/imishinist/fitlog/internal/config"
)

// ErrNoProjectRoot reports that no ancestor of an anchor file holds the
// project marker file.
var ErrNoProjectRoot = fmt.Errorf("project root not found: %w", errdefs.ErrNotFound)

// Snapshotter captures the code state of a project root.
type Snapshotter interface {
	// Snapshot records the current working tree, minus the exclude paths,
	// and returns its id.
	Snapshot(ctx context.Context, root, message string, exclude ...string) (string, error)
	// CurrentSnapshotID returns the latest id, or "" when nothing was recorded yet.
	CurrentSnapshotID(ctx context.Context, root string) (string, error)
}

// FindProjectRoot walks upward from anchor (a file or a directory) to the
// first directory containing the project marker file.
func FindProjectRoot(anchor string) (string, error) {
	abs, err := filepath.Abs(anchor)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", anchor, err)
	}
	dir := abs
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, config.ProjectFile)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no %s above %s", ErrNoProjectRoot, config.ProjectFile, abs)
		}
		dir = parent
	}
}

// GitSnapshotter keeps snapshots in a git repository whose git dir lives
// inside the project root, separate from any repository of the project itself.
type GitSnapshotter struct {
	// GitDir is relative to the project root.
	GitDir string
	Binary string
	// Exclude lists paths, relative to the root, that are never snapshotted.
	Exclude []string
}

func NewGitSnapshotter() *GitSnapshotter {
	return &GitSnapshotter{
		GitDir:  config.SnapshotDir,
		Binary:  "git",
		Exclude: []string{config.DefaultLogDirName + "/"},
	}
}

// Init creates the snapshot repository unless it exists.
func (g *GitSnapshotter) Init(ctx context.Context, root string) (bool, error) {
	return g.initRepo(ctx, root, nil)
}

func (g *GitSnapshotter) initRepo(ctx context.Context, root string, extra []string) (bool, error) {
	gitDir := filepath.Join(root, g.GitDir)
	if _, err := os.Stat(gitDir); err == nil {
		return false, nil
	}
	if _, err := g.git(ctx, root, "init", "-q"); err != nil {
		return false, err
	}

	exclude := append([]string{"/" + g.GitDir + "/"}, g.Exclude...)
	for _, rel := range extra {
		exclude = append(exclude, "/"+rel+"/")
	}
	excludeFile := filepath.Join(gitDir, "info", "exclude")
	if err := os.MkdirAll(filepath.Dir(excludeFile), 0o755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", filepath.Dir(excludeFile), err)
	}
	if err := os.WriteFile(excludeFile, []byte(strings.Join(exclude, "\n")+"\n"), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", excludeFile, err)
	}
	return true, nil
}

// Snapshot commits the working tree of root. Exclude paths outside root are
// ignored; the ones inside are left out of this and, on first use, every
// later snapshot.
func (g *GitSnapshotter) Snapshot(ctx context.Context, root, message string, exclude ...string) (string, error) {
	rels := relativeInside(root, exclude)
	if _, err := os.Stat(filepath.Join(root, g.GitDir)); err != nil {
		if _, err := g.initRepo(ctx, root, rels); err != nil {
			return "", err
		}
	}
	if message == "" {
		message = "fitlog snapshot"
	}
	add := []string{"add", "-A", "--", "."}
	for _, rel := range rels {
		add = append(add, ":(exclude)"+rel)
	}
	if _, err := g.git(ctx, root, add...); err != nil {
		return "", err
	}
	if _, err := g.git(ctx, root,
		"-c", "user.name=fitlog", "-c", "user.email=fitlog@localhost",
		"commit", "-q", "--allow-empty", "--no-verify", "-m", message); err != nil {
		return "", err
	}
	id, err := g.CurrentSnapshotID(ctx, root)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("snapshot produced no commit in %s", root)
	}
	return id, nil
}

// relativeInside returns the paths below root as slash-separated relative
// paths. root itself and paths outside it are dropped.
func relativeInside(root string, paths []string) []string {
	var out []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func (g *GitSnapshotter) CurrentSnapshotID(ctx context.Context, root string) (string, error) {
	out, err := g.git(ctx, root, "rev-parse", "--verify", "-q", "HEAD")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *GitSnapshotter) git(ctx context.Context, root string, args ...string) (string, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	full := append([]string{
		"--git-dir=" + filepath.Join(root, g.GitDir),
		"--work-tree=" + root,
	}, args...)

	cmd := exec.CommandContext(ctx, bin, full...)
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %s: %w", subcommand(args), strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}

func subcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		return args[i]
	}
	return ""
}
