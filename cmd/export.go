package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imishinist/fitlog/internal/logwriter"
	"github.com/imishinist/fitlog/internal/mlflow"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export runs to other trackers",
}

var exportMLflowCmd = &cobra.Command{
	Use:   "mlflow [run-dir]",
	Short: "Export a run to an MLflow tracking server",
	Long: `Create an MLflow run from a local run (default: FITLOG_RUN_DIR).
Hyperparameters and other values become parameters, best metrics and the
metric/loss streams become metrics. Runs without the finish marker end as KILLED.`,
	Args: cobra.MaximumNArgs(1),
	RunE: exportMLflow,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportMLflowCmd)

	exportMLflowCmd.Flags().String("tracking-uri", "", "MLflow tracking URI (overrides MLFLOW_TRACKING_URI)")
	exportMLflowCmd.Flags().String("experiment-id", "", "Experiment ID (overrides MLFLOW_EXPERIMENT_ID)")
	exportMLflowCmd.Flags().StringArray("tag", []string{}, "Extra tags in key=value format")
	exportMLflowCmd.Flags().Bool("dry-run", false, "Print what would be sent without contacting the server")
	viper.BindPFlag("tracking_uri", exportMLflowCmd.Flags().Lookup("tracking-uri"))
	viper.BindPFlag("experiment_id", exportMLflowCmd.Flags().Lookup("experiment-id"))
}

func exportMLflow(cmd *cobra.Command, args []string) error {
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
	tags, _ := cmd.Flags().GetStringArray("tag")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	pairs, err := parseKeyValues("tag", tags)
	if err != nil {
		return err
	}
	if cfg.ExperimentID == "" {
		return fmt.Errorf("experiment ID must be specified via --experiment-id flag or MLFLOW_EXPERIMENT_ID environment variable")
	}

	rec, err := logwriter.ReadRun(runDir)
	if err != nil {
		return fmt.Errorf("failed to read run %s: %w", runDir, err)
	}
	plan := mlflow.BuildExportPlan(rec, cfg.ExperimentID)
	for _, kv := range pairs {
		plan.Run.Tags[kv[0]] = kv[1]
	}

	logger := newLogger(cfg, "export").WithRunID(rec.Meta.RunID)
	if plan.Skipped > 0 {
		logger.Info("skipped values that are not finite numbers", "count", plan.Skipped)
	}

	if dryRun {
		fmt.Printf("Run: %s (%s)\n", *plan.Run.RunName, plan.Status)
		for _, p := range plan.Params {
			fmt.Printf("  param  %s = %s\n", p.Key, p.Value)
		}
		fmt.Printf("  %d metric points\n", len(plan.Metrics))
		return nil
	}

	client, err := mlflow.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create MLflow client: %w", err)
	}
	start := time.Now()
	info, err := mlflow.ExportRun(context.Background(), client, plan)
	if err != nil {
		return fmt.Errorf("failed to export run: %w", err)
	}
	logger.WithDuration(time.Since(start)).Info("exported run",
		"mlflow_run_id", info.RunID, "params", len(plan.Params), "metrics", len(plan.Metrics))

	// Output only run ID for shell scripting
	fmt.Printf("%s\n", info.RunID)
	return nil
}
