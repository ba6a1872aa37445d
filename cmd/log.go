package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imishinist/fitlog/internal/models"
	"github.com/imishinist/fitlog/internal/parser"
	"github.com/imishinist/fitlog/tracker"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Record values into a run",
	Long:  "Record metrics, losses, best metrics, hyperparameters and other values into a run started with commit",
}

var logMetricCmd = &cobra.Command{
	Use:   "metric",
	Short: "Append a metric point",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return logSeries(cmd, models.KindMetric) },
}

var logLossCmd = &cobra.Command{
	Use:   "loss",
	Short: "Append a loss point",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return logSeries(cmd, models.KindLoss) },
}

var logBestMetricCmd = &cobra.Command{
	Use:   "best-metric",
	Short: "Set best metric values",
	Long:  "Set best metric values. A later value replaces an earlier one of the same top-level name.",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return logKeyed(cmd, models.KindBestMetric) },
}

var logHyperCmd = &cobra.Command{
	Use:   "hyper",
	Short: "Set hyperparameters",
	Long:  "Set hyperparameters from flags or from a JSON/YAML parameters file",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return logKeyed(cmd, models.KindHyper) },
}

var logOtherCmd = &cobra.Command{
	Use:   "other",
	Short: "Set other run values",
	Args:  cobra.NoArgs,
	RunE:  func(cmd *cobra.Command, args []string) error { return logKeyed(cmd, models.KindOther) },
}

var logHyperFileCmd = &cobra.Command{
	Use:   "hyper-file <source-file>",
	Short: "Set hyperparameters from the marked region of a source file",
	Long: `Read the assignments between the first two marker lines of a source file
and record them as hyperparameters. A marker line is a comment such as:

  # hyper
  lr = 0.01
  batch = 32
  # hyper`,
	Args: cobra.ExactArgs(1),
	RunE: logHyperFile,
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.AddCommand(logMetricCmd, logLossCmd, logBestMetricCmd, logHyperCmd, logOtherCmd, logHyperFileCmd)

	for _, c := range []*cobra.Command{logMetricCmd, logLossCmd, logBestMetricCmd, logHyperCmd, logOtherCmd} {
		addRunDirFlag(c)
		c.Flags().String("name", "", "Name the value is stored under")
		c.Flags().String("value", "", "Scalar value (integer, float or string)")
		c.Flags().StringArray("param", []string{}, "Values in key=value format")
		c.Flags().String("json", "", "JSON mapping of values")
	}
	for _, c := range []*cobra.Command{logMetricCmd, logLossCmd} {
		c.Flags().Int64("step", 0, "Step number (required)")
		c.Flags().Int64("epoch", -1, "Epoch number (optional)")
		c.MarkFlagRequired("step")
	}
	logHyperCmd.Flags().String("from-file", "", "Load hyperparameters from file (JSON/YAML)")
	addRunDirFlag(logHyperFileCmd)
}

// valueFromFlags builds the value to record from --value, --param or --json.
func valueFromFlags(cmd *cobra.Command) (any, error) {
	value, _ := cmd.Flags().GetString("value")
	params, _ := cmd.Flags().GetStringArray("param")
	raw, _ := cmd.Flags().GetString("json")

	set := 0
	for _, given := range []bool{cmd.Flags().Changed("value"), len(params) > 0, raw != ""} {
		if given {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of --value, --param or --json must be specified")
	}

	switch {
	case raw != "":
		var v models.Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to parse --json: %w", err)
		}
		return v, nil
	case len(params) > 0:
		pairs, err := parseKeyValues("parameter", params)
		if err != nil {
			return nil, err
		}
		m := models.NewMap()
		for _, kv := range pairs {
			m.Set(kv[0], models.ParseScalar(kv[1]))
		}
		return m, nil
	default:
		return models.ParseScalar(value), nil
	}
}

func recordOptions(cmd *cobra.Command) []tracker.RecordOption {
	var opts []tracker.RecordOption
	if name, _ := cmd.Flags().GetString("name"); name != "" {
		opts = append(opts, tracker.WithName(name))
	}
	if cmd.Flags().Lookup("epoch") != nil {
		if epoch, _ := cmd.Flags().GetInt64("epoch"); epoch >= 0 {
			opts = append(opts, tracker.WithEpoch(epoch))
		}
	}
	return opts
}

func logSeries(cmd *cobra.Command, kind models.Kind) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := attachRun(cmd, cfg)
	if err != nil {
		return err
	}
	value, err := valueFromFlags(cmd)
	if err != nil {
		return err
	}
	step, _ := cmd.Flags().GetInt64("step")

	add := t.AddMetric
	if kind == models.KindLoss {
		add = t.AddLoss
	}
	if err := add(value, step, recordOptions(cmd)...); err != nil {
		return fmt.Errorf("failed to log %s: %w", kind, err)
	}

	fmt.Printf("Successfully logged %s (step: %d)\n", kind, step)
	return nil
}

func logKeyed(cmd *cobra.Command, kind models.Kind) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := attachRun(cmd, cfg)
	if err != nil {
		return err
	}

	var value any
	fromFile := ""
	if cmd.Flags().Lookup("from-file") != nil {
		fromFile, _ = cmd.Flags().GetString("from-file")
	}
	if fromFile != "" {
		params, err := parser.ParseParamsFile(fromFile)
		if err != nil {
			return fmt.Errorf("failed to parse parameters file: %w", err)
		}
		value = params
	} else if value, err = valueFromFlags(cmd); err != nil {
		return err
	}

	var add func(any, ...tracker.RecordOption) error
	switch kind {
	case models.KindBestMetric:
		add = t.AddBestMetric
	case models.KindHyper:
		add = t.AddHyper
	default:
		add = t.AddOther
	}
	if err := add(value, recordOptions(cmd)...); err != nil {
		return fmt.Errorf("failed to log %s: %w", kind, err)
	}

	fmt.Printf("Successfully logged %s\n", kind)
	return nil
}

func logHyperFile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := attachRun(cmd, cfg)
	if err != nil {
		return err
	}
	if err := t.AddHyperInFile(args[0]); err != nil {
		return fmt.Errorf("failed to log hyperparameters from %s: %w", args[0], err)
	}

	fmt.Printf("Successfully logged hyperparameters from %s\n", args[0])
	return nil
}
