package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/imishinist/fitlog/internal/config"
	"github.com/imishinist/fitlog/internal/logging"
	"github.com/imishinist/fitlog/internal/registry"
	"github.com/imishinist/fitlog/tracker"
)

var rootCmd = &cobra.Command{
	Use:   "fitlog",
	Short: "Experiment log recorder",
	Long: `A command line tool that records machine learning experiment runs.
Each run snapshots the code, then collects metrics, losses, best metrics and
hyperparameters into its own directory under the project log directory.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("log-dir", "", "Log directory (overrides the project .fitconfig)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text/json)")
	viper.BindPFlag("log_dir", rootCmd.PersistentFlags().Lookup("log-dir"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	// A .env in the working directory fills variables the shell left unset
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	// Environment variables
	viper.SetEnvPrefix("FITLOG")
	viper.AutomaticEnv()

	// MLflow and Databricks keep their own variable names
	viper.BindEnv("tracking_uri", "FITLOG_TRACKING_URI", "MLFLOW_TRACKING_URI")
	viper.BindEnv("experiment_id", "FITLOG_EXPERIMENT_ID", "MLFLOW_EXPERIMENT_ID")
	viper.BindEnv("databricks_host", "DATABRICKS_HOST")
	viper.BindEnv("databricks_token", "DATABRICKS_TOKEN")

	// Set defaults
	viper.SetDefault("tracking_uri", "http://localhost:5000")
	viper.SetDefault("time_resolution", "1m")
	viper.SetDefault("time_alignment", "floor")
	viper.SetDefault("step_mode", "auto")
}

// loadConfig reads and validates the global configuration.
func loadConfig() (*config.Config, error) {
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, component string) *logging.Logger {
	return logging.New(logging.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: component,
	})
}

func newTracker(cfg *config.Config) *tracker.Tracker {
	return tracker.New(tracker.Options{
		Config: config.NewProjectConfig(""),
		Logger: newLogger(cfg, "tracker"),
	})
}

// attachRun binds a tracker to the run selected by --run-dir or FITLOG_RUN_DIR.
func attachRun(cmd *cobra.Command, cfg *config.Config) (*tracker.Tracker, error) {
	runDir, _ := cmd.Flags().GetString("run-dir")
	if runDir == "" {
		runDir = cfg.RunDir
	}
	if runDir == "" {
		return nil, fmt.Errorf("%w: pass --run-dir or set FITLOG_RUN_DIR to the directory printed by commit", tracker.ErrNoActiveRun)
	}
	t := newTracker(cfg)
	if _, err := t.Attach(runDir); err != nil {
		return nil, fmt.Errorf("failed to open run %s: %w", runDir, err)
	}
	return t, nil
}

func addRunDirFlag(cmd *cobra.Command) {
	cmd.Flags().String("run-dir", "", "Run directory (default: FITLOG_RUN_DIR)")
}

// resolveLogDir returns --log-dir, else the default of the project
// containing the working directory.
func resolveLogDir(cfg *config.Config) (string, error) {
	if cfg.LogDir != "" {
		return cfg.LogDir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	root, err := registry.FindProjectRoot(wd)
	if err != nil {
		return "", fmt.Errorf("%w: %w", registry.ErrConfig, err)
	}
	dir, err := config.NewProjectConfig("").DefaultLogDir(root)
	if err != nil {
		return "", err
	}
	if dir == "" {
		return "", registry.ErrConfig
	}
	return dir, nil
}

// parseKeyValues parses strings in key=value format
func parseKeyValues(kind string, items []string) ([][2]string, error) {
	pairs := make([][2]string, 0, len(items))
	for _, item := range items {
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid %s format: %s (expected key=value)", kind, item)
		}
		pairs = append(pairs, [2]string{parts[0], parts[1]})
	}
	return pairs, nil
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s (supported: json, yaml)", format)
	}
}
