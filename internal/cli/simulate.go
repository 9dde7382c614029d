package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fromlifetolines/lumina-ados/internal/app"
)

var (
	simulateSet   []string
	simulateModel string
	simulateApply bool
	simulateName  string
	simulatePNG   string

	forecastBudget float64
	forecastRoas   float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "模拟预算分配并预测收入",
	Example: `  lumina simulate --set meta=25000 --set google=15000
  lumina simulate --set tiktok=18000 --model decay --apply --name "Q4 push"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := app.ParseAllocation(simulateSet)
		if err != nil {
			return err
		}
		if simulateName != "" && !simulateApply {
			return errors.New("--name 仅在 --apply 时有效")
		}

		_, err = getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Set:     set,
			Model:   simulateModel,
			Apply:   simulateApply,
			Name:    simulateName,
			PNGPath: simulatePNG,
		})
		return err
	},
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "单渠道快速预测（预算 × ROAS）",
	RunE: func(cmd *cobra.Command, args []string) error {
		if forecastBudget < 0 || forecastRoas < 0 {
			return errors.New("--budget 与 --roas 不能为负数")
		}
		return getApp().Forecast(app.ForecastOptions{
			Budget: decimal.NewFromFloat(forecastBudget),
			Roas:   decimal.NewFromFloat(forecastRoas),
		})
	},
}

func init() {
	simulateCmd.Flags().StringArrayVar(&simulateSet, "set", nil, "Channel budget override as id=budget (repeatable)")
	simulateCmd.Flags().StringVar(&simulateModel, "model", "", "Saturation model: flat or decay (defaults to projection.model)")
	simulateCmd.Flags().BoolVar(&simulateApply, "apply", false, "Save the projection as a scenario")
	simulateCmd.Flags().StringVar(&simulateName, "name", "", "Scenario name (defaults to a timestamp)")
	simulateCmd.Flags().StringVar(&simulatePNG, "png", "", "Path to write a projected revenue bar chart")

	forecastCmd.Flags().Float64Var(&forecastBudget, "budget", 10000, "Monthly budget")
	forecastCmd.Flags().Float64Var(&forecastRoas, "roas", 3, "Expected ROAS")

	simulateCmd.AddCommand(forecastCmd)
}
