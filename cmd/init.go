package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imishinist/fitlog/internal/config"
	"github.com/imishinist/fitlog/internal/registry"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Set up a project for run tracking",
	Long:  "Write a default .fitconfig and create the snapshot repository in the project root (default: current directory)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  initProject,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initProject(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	created, err := config.WriteDefaultProjectFile(root)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Created %s\n", filepath.Join(root, config.ProjectFile))
	}

	logDir, err := config.NewProjectConfig("").DefaultLogDir(root)
	if err != nil {
		return err
	}
	snap := registry.NewGitSnapshotter()
	// a log directory inside the project must stay out of snapshots
	if rel, err := filepath.Rel(root, logDir); err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
		snap.Exclude = []string{"/" + filepath.ToSlash(rel) + "/"}
	}

	initialized, err := snap.Init(context.Background(), root)
	if err != nil {
		return fmt.Errorf("failed to initialize snapshots: %w", err)
	}
	if initialized {
		fmt.Printf("Initialized snapshot store in %s\n", filepath.Join(root, snap.GitDir))
	}
	if !created && !initialized {
		fmt.Printf("Project %s is already initialized\n", root)
	}
	return nil
}
