package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imishinist/fitlog/internal/logwriter"
)

var showCmd = &cobra.Command{
	Use:   "show [run-dir]",
	Short: "Print the merged record of a run",
	Long:  "Print run metadata, state, summaries and metric/loss streams of a run (default: FITLOG_RUN_DIR)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  showRun,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().StringP("format", "o", "yaml", "Output format (json/yaml)")
}

func showRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runDir := cfg.RunDir
	if len(args) == 1 {
		runDir = args[0]
	}
	if runDir == "" {
		return fmt.Errorf("a run directory must be given as argument or via FITLOG_RUN_DIR")
	}
	format, _ := cmd.Flags().GetString("format")

	rec, err := logwriter.ReadRun(runDir)
	if err != nil {
		return fmt.Errorf("failed to read run %s: %w", runDir, err)
	}
	return writeOutput(os.Stdout, format, rec)
}
