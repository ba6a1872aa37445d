package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/imishinist/fitlog/internal/models"
	"github.com/imishinist/fitlog/internal/parser"
	timeutils "github.com/imishinist/fitlog/internal/time"
)

var logMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Append metric points from a file",
	Long: `Append metric points from a JSON or YAML file of the form

  metrics:
    - timestamp: 2026-01-02T03:04:05Z   # optional
      step: 3                           # optional
      epoch: 1                          # optional
      values: {acc: 0.91, f1: 0.88}

Points without a step get one derived from --step-mode.`,
	Args: cobra.NoArgs,
	RunE: logMetrics,
}

func init() {
	logCmd.AddCommand(logMetricsCmd)

	addRunDirFlag(logMetricsCmd)
	logMetricsCmd.Flags().String("from-file", "", "Load metrics from file (JSON/YAML)")
	logMetricsCmd.Flags().String("time-resolution", "", "Time resolution (1m/5m/1h)")
	logMetricsCmd.Flags().String("time-alignment", "", "Time alignment (floor/ceil/round)")
	logMetricsCmd.Flags().String("step-mode", "", "Step mode (auto/timestamp/sequence)")
	logMetricsCmd.MarkFlagRequired("from-file")
}

func logMetrics(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fromFile, _ := cmd.Flags().GetString("from-file")
	timeResolution, _ := cmd.Flags().GetString("time-resolution")
	timeAlignment, _ := cmd.Flags().GetString("time-alignment")
	stepMode, _ := cmd.Flags().GetString("step-mode")

	// Use config defaults if not specified
	if timeResolution == "" {
		timeResolution = cfg.TimeResolution
	}
	if timeAlignment == "" {
		timeAlignment = cfg.TimeAlignment
	}
	if stepMode == "" {
		stepMode = cfg.StepMode
	}

	t, err := attachRun(cmd, cfg)
	if err != nil {
		return err
	}

	metricsFile, err := parser.ParseMetricsFile(fromFile)
	if err != nil {
		return fmt.Errorf("failed to parse metrics file: %w", err)
	}

	timeConfig := models.TimeConfig{
		Resolution: timeResolution,
		Alignment:  timeAlignment,
		StepMode:   stepMode,
	}
	processed, err := timeutils.ProcessMetrics(metricsFile.Metrics, timeConfig, nil)
	if err != nil {
		return fmt.Errorf("failed to process metrics: %w", err)
	}

	if err := t.AddMetrics(processed); err != nil {
		return fmt.Errorf("failed to log metrics: %w", err)
	}

	fmt.Printf("Successfully logged %d metric points from %s\n", len(processed), fromFile)
	fmt.Printf("Time configuration: resolution=%s, alignment=%s, step_mode=%s\n",
		timeResolution, timeAlignment, stepMode)

	counts := make(map[string]int)
	for _, m := range processed {
		for _, e := range m.Values.Flatten() {
			counts[e.Key]++
		}
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Println("Metrics summary:")
	for _, key := range keys {
		fmt.Printf("  %s: %d data points\n", key, counts[key])
	}
	return nil
}
