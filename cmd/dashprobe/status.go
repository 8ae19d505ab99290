package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/dashprobe/internal/config"
	"github.com/hazz-dev/dashprobe/internal/storage"
)

type statusStore interface {
	LatestResults(ctx context.Context) ([]storage.Result, error)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest result of every check from history",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return executeStatus(cmd, db)
}

func executeStatus(cmd *cobra.Command, db statusStore) error {
	out := cmd.OutOrStdout()
	results, err := db.LatestResults(context.Background())
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No check history. Run 'dashprobe run' or 'dashprobe serve' first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tTYPE\tSTATUS\tVALUE\tLOCATOR\tLAST CHECKED")
	for _, r := range results {
		value := r.Value
		if value == "" {
			value = "—"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Check,
			r.Type,
			r.Status,
			value,
			r.Locator,
			r.CheckedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()
	return nil
}
