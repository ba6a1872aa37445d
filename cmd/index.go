package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/imishinist/fitlog/internal/index"
	"github.com/imishinist/fitlog/internal/models"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the run index of the log directory",
	Args:  cobra.NoArgs,
	RunE:  rebuildIndex,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs of the log directory",
	Long:  "List indexed runs, newest first. Columns name summary entries as <kind>.<key>, e.g. hyper.lr or best_metric.acc.",
	Args:  cobra.NoArgs,
	RunE:  listRuns,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().String("state", "", "Only runs in this state (FINISHED/ABORTED)")
	listCmd.Flags().StringSlice("column", []string{}, "Summary columns to show")
	listCmd.Flags().Int("limit", 0, "Maximum number of runs")
	listCmd.Flags().Bool("refresh", true, "Rebuild the index before listing")
	listCmd.Flags().Bool("keys", false, "List the available columns instead of runs")
}

func openIndex(ctx context.Context) (*index.Index, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	logDir, err := resolveLogDir(cfg)
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(logDir); err != nil {
		return nil, "", fmt.Errorf("log directory %s: %w", logDir, err)
	}
	ix, err := index.OpenLogDir(ctx, logDir)
	if err != nil {
		return nil, "", err
	}
	return ix, logDir, nil
}

func rebuildIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ix, logDir, err := openIndex(ctx)
	if err != nil {
		return err
	}
	defer ix.Close()

	n, err := ix.Rebuild(ctx, logDir)
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", logDir, err)
	}
	fmt.Printf("Indexed %d runs in %s\n", n, logDir)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	state, _ := cmd.Flags().GetString("state")
	columns, _ := cmd.Flags().GetStringSlice("column")
	limit, _ := cmd.Flags().GetInt("limit")
	refresh, _ := cmd.Flags().GetBool("refresh")
	keysOnly, _ := cmd.Flags().GetBool("keys")

	ctx := context.Background()
	ix, logDir, err := openIndex(ctx)
	if err != nil {
		return err
	}
	defer ix.Close()

	if refresh {
		if _, err := ix.Rebuild(ctx, logDir); err != nil {
			return fmt.Errorf("failed to index %s: %w", logDir, err)
		}
	}

	if keysOnly {
		keys, err := ix.Keys(ctx)
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	}

	rows, err := ix.List(ctx, index.ListFilter{
		State:   models.RunState(strings.ToUpper(state)),
		Columns: columns,
		Limit:   limit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := append([]string{"RUN", "STATE", "STARTED", "MESSAGE"}, columns...)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, r := range rows {
		line := []string{r.RunID, string(r.State), r.StartedAt.Local().Format(time.DateTime), r.Message}
		for _, col := range columns {
			line = append(line, r.Columns[col])
		}
		fmt.Fprintln(w, strings.Join(line, "\t"))
	}
	return w.Flush()
}
