package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/dishwasher-scheduler/internal/logic"
	"github.com/sweeney/dishwasher-scheduler/internal/price"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the start time that would be chosen now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return printPlan(cmd.Context(), cmd.OutOrStdout(), newPriceSource(cfg.Tibber), cfg.Cycle.Logic(), time.Now())
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}

// printPlan fetches prices (if a source is configured) and prints the start
// instant and its basis. A failed fetch is reported and falls back.
func printPlan(ctx context.Context, w io.Writer, src price.Source, cycle logic.Config, now time.Time) error {
	var series logic.PriceSeries
	if src != nil {
		s, err := src.Fetch(ctx)
		if err != nil {
			fmt.Fprintf(w, "price fetch failed: %v\n", err)
		} else {
			series = s
			fmt.Fprintf(w, "prices: %d hours\n", len(series))
		}
	} else {
		fmt.Fprintln(w, "prices: not configured")
	}

	s := logic.ChooseStart(series, now, cycle)
	_, err := fmt.Fprintf(w, "start: %s (%s, in %v)\n",
		s.Start.Format("Mon 2006-01-02 15:04 MST"), s.Basis, s.Start.Sub(now).Truncate(time.Minute))
	return err
}
