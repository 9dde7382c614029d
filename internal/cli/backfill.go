package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fromlifetolines/lumina-ados/internal/app"
)

var (
	backfillDays      int
	backfillDryRun    bool
	backfillCustomers bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Persist the configured channel series into daily_metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillDays < 0 {
			return fmt.Errorf("--days must not be negative")
		}

		opts := app.BackfillOptions{
			Days:      backfillDays,
			DryRun:    backfillDryRun,
			Customers: backfillCustomers,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillDays, "days", 0, "Trailing days to backfill (defaults to source.days)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
	backfillCmd.Flags().BoolVar(&backfillCustomers, "customers", false, "Also import the customer file")
}
