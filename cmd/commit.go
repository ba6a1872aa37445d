package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit <anchor-file>",
	Short: "Start a run",
	Long: `Snapshot the project containing the anchor file and create a new run
directory in its log directory. The run directory is printed on stdout, so
that later commands can pick it up through FITLOG_RUN_DIR:

  export FITLOG_RUN_DIR=$(fitlog commit train.py -m "baseline")`,
	Args: cobra.ExactArgs(1),
	RunE: commitRun,
}

var finishCmd = &cobra.Command{
	Use:   "finish",
	Short: "Mark a run as finished",
	Long:  "Write the finish marker of a run. Runs without it are shown as aborted.",
	Args:  cobra.NoArgs,
	RunE:  finishRun,
}

func init() {
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(finishCmd)

	commitCmd.Flags().StringP("message", "m", "", "Run message, also used as the snapshot message")
	addRunDirFlag(finishCmd)
}

func commitRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	message, _ := cmd.Flags().GetString("message")

	t := newTracker(cfg)
	if cfg.LogDir != "" {
		if err := t.SetLogDir(cfg.LogDir); err != nil {
			return err
		}
	}
	run, err := t.Commit(context.Background(), args[0], processEscapeSequences(message))
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	// Output only the run directory for shell scripting
	fmt.Printf("%s\n", run.Dir)
	return nil
}

func finishRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := attachRun(cmd, cfg)
	if err != nil {
		return err
	}
	run, err := t.Run()
	if err != nil {
		return err
	}
	alreadyFinished := run.Finished()
	if err := t.Finish(); err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	if alreadyFinished {
		fmt.Printf("Run %s was already finished\n", run.RunID)
		return nil
	}
	fmt.Printf("Run finished successfully\n")
	fmt.Printf("Run ID: %s\n", run.RunID)
	fmt.Printf("Directory: %s\n", run.Dir)
	return nil
}

// processEscapeSequences processes common escape sequences in strings
func processEscapeSequences(s string) string {
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\t", "\t")
	s = strings.ReplaceAll(s, "\\r", "\r")
	s = strings.ReplaceAll(s, "\\\\", "\\")
	return s
}
