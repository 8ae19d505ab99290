package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/dashprobe/internal/config"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and print its checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "config OK: %d checks, digest %s\n\n", len(cfg.Checks), cfg.Digest())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tTYPE\tLOCATORS\tFALLBACK\tURL")
	for _, c := range cfg.Checks {
		fallback := "—"
		if c.Fallback != nil {
			fallback = c.Fallback.Strategy
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", c.Name, c.Type, len(c.Locators), fallback, c.URL)
	}
	w.Flush()
}
