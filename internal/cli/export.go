package cli

import (
	"github.com/spf13/cobra"

	"github.com/fromlifetolines/lumina-ados/internal/app"
)

var (
	exportWindow    windowFlags
	exportPNGPath   string
	exportCSVPath   string
	exportXLSXPath  string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the KPI window as CSV, PNG chart and/or XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := exportWindow.window()
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			Window:    w,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			XLSXPath:  exportXLSXPath,
			MaxPoints: exportMaxPoints,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportWindow.register(exportCmd)
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportXLSXPath, "xlsx", "", "Path to write the executive XLSX workbook")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
