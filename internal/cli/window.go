package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fromlifetolines/lumina-ados/internal/app"
)

const dateLayout = "2006-01-02"

// windowFlags are the KPI window selectors shared by report and export.
type windowFlags struct {
	source string
	days   int
	from   string
	to     string
}

func (w *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&w.source, "source", "", "Acquisition source filter (all, Google Ads, SEO, Meta, ...)")
	cmd.Flags().IntVar(&w.days, "days", 0, "Trailing window in days (defaults to source.days)")
	cmd.Flags().StringVar(&w.from, "from", "", "Customer window start date (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&w.to, "to", "", "Customer window end date (YYYY-MM-DD, inclusive)")
}

func (w *windowFlags) window() (app.Window, error) {
	if w.days < 0 {
		return app.Window{}, fmt.Errorf("--days must not be negative")
	}
	out := app.Window{Source: w.source, Days: w.days}

	if w.from != "" {
		from, err := time.Parse(dateLayout, w.from)
		if err != nil {
			return out, fmt.Errorf("invalid --from value: %w", err)
		}
		out.From = &from
	}

	if w.to != "" {
		to, err := time.Parse(dateLayout, w.to)
		if err != nil {
			return out, fmt.Errorf("invalid --to value: %w", err)
		}
		out.To = &to
	}

	if out.From != nil && out.To != nil && out.From.After(*out.To) {
		return out, fmt.Errorf("--from must not be after --to")
	}
	return out, nil
}
