package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fromlifetolines/lumina-ados/internal/app"
)

var (
	reportWindow windowFlags
	reportTop    int

	scenariosLimit int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the KPI dashboard and recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportTop < 0 {
			return fmt.Errorf("--top must not be negative")
		}
		w, err := reportWindow.window()
		if err != nil {
			return err
		}
		return getApp().Report(cmd.Context(), app.ReportOptions{Window: w, Top: reportTop})
	},
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List saved budget scenarios",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scenariosLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().Scenarios(cmd.Context(), scenariosLimit)
	},
}

func init() {
	reportWindow.register(reportCmd)
	reportCmd.Flags().IntVar(&reportTop, "top", 5, "Number of high-value customers to list")

	scenariosCmd.Flags().IntVar(&scenariosLimit, "limit", 20, "Number of scenarios to display")
}
