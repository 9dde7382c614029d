package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/fromlifetolines/lumina-ados/internal/projection"
)

// Simulate projects a budget allocation. Channels not named in opts.Set keep
// their baseline budget. With Apply the scenario is persisted.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) (projection.ProjectionResult, error) {
	configs := a.platformConfigs()
	if len(configs) == 0 {
		return projection.ProjectionResult{}, errors.New("no paid channels configured")
	}

	var unknown []string
	for id, budget := range opts.Set {
		if _, ok := configs[id]; !ok {
			unknown = append(unknown, id)
		}
		if budget.Sign() < 0 {
			return projection.ProjectionResult{}, fmt.Errorf("budget for %s must not be negative", id)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return projection.ProjectionResult{}, fmt.Errorf("unknown channels: %s", strings.Join(unknown, ", "))
	}

	model, err := a.projectionModel(opts.Model)
	if err != nil {
		return projection.ProjectionResult{}, err
	}

	alloc := projection.BaselineAllocation(configs)
	for id, budget := range opts.Set {
		alloc = alloc.With(id, budget)
	}
	result := model.Project(alloc, configs)

	if err := a.printProjection(configs, model.Name(), result); err != nil {
		return result, err
	}
	if opts.PNGPath != "" {
		if err := writeProjectionPNG(opts.PNGPath, configs, result); err != nil {
			return result, err
		}
		a.Logger.Info().Str("path", opts.PNGPath).Msg("projection chart written")
	}

	if !opts.Apply {
		return result, nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return result, err
	}
	if store == nil {
		return result, errors.New("database.dsn 未配置，无法保存方案")
	}
	defer closeStore()

	scenario := projection.NewScenario(strings.TrimSpace(opts.Name), alloc, result, model.Name(), time.Now())
	if err := store.InsertScenario(ctx, scenario); err != nil {
		return result, err
	}
	a.Logger.Info().Str("scenario_id", scenario.ID.String()).Str("name", scenario.Name).Msg("scenario applied")
	fmt.Fprintf(a.Out, "\nSaved scenario %q (%s)\n", scenario.Name, scenario.ID)
	return result, nil
}

func (a *App) printProjection(configs map[string]projection.PlatformConfig, model string, result projection.ProjectionResult) error {
	f, err := a.formatter()
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Channel\tBudget\tBaseline\tROAS\tRevenue\tSaturated")
	for _, ch := range result.Channels {
		name := ch.ID
		if cfg, ok := configs[ch.ID]; ok && cfg.DisplayName != "" {
			name = cfg.DisplayName
		}
		saturated := ""
		if ch.Saturated {
			saturated = "yes"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n", name, f.Format(ch.Budget), f.Format(ch.BaselineBudget), roas(ch.EffectiveRoas), f.Format(ch.Revenue), saturated)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "\nModel: %s\n", model)
	for _, row := range [][2]string{
		{"Total budget:", f.Format(result.TotalBudget) + " (baseline " + f.Format(result.BaselineBudget) + ")"},
		{"Projected revenue:", f.Format(result.TotalRevenue) + " (baseline " + f.Format(result.BaselineRevenue) + ")"},
		{"Revenue lift:", signedMoney(f, result.RevenueLift)},
		{"Implied ROAS:", roas(result.ImpliedRoas)},
	} {
		fmt.Fprintf(a.Out, "%-19s%s\n", row[0], row[1])
	}
	return nil
}

// writeProjectionPNG renders projected revenue per channel as a bar chart.
func writeProjectionPNG(path string, configs map[string]projection.PlatformConfig, result projection.ProjectionResult) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, 0, len(result.Channels))
	for _, ch := range result.Channels {
		label := ch.ID
		style := chart.Style{}
		if cfg, ok := configs[ch.ID]; ok {
			if cfg.DisplayName != "" {
				label = cfg.DisplayName
			}
			if hint := strings.TrimPrefix(cfg.ColorHint, "#"); hint != "" {
				style.FillColor = drawing.ColorFromHex(hint)
				style.StrokeColor = style.FillColor
			}
		}
		bars = append(bars, chart.Value{Label: label, Value: num(ch.Revenue), Style: style})
	}

	graph := chart.BarChart{
		Title:    "Projected revenue by channel",
		Height:   480,
		BarWidth: 60,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	defer file.Close()
	return graph.Render(chart.PNG, file)
}

// Forecast prints the single-channel quick forecast.
func (a *App) Forecast(opts ForecastOptions) error {
	if opts.Budget.Sign() < 0 || opts.Roas.Sign() < 0 {
		return errors.New("budget and roas must not be negative")
	}
	f, err := a.formatter()
	if err != nil {
		return err
	}
	revenue, profit := projection.QuickForecast(opts.Budget, opts.Roas)
	fmt.Fprintf(a.Out, "Budget:  %s\nROAS:    %s\nRevenue: %s\nProfit:  %s\n", f.Format(opts.Budget), roas(opts.Roas), f.Format(revenue), signedMoney(f, profit))
	return nil
}

// ParseAllocation parses "id=budget" pairs.
func ParseAllocation(pairs []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		id, raw, ok := strings.Cut(pair, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid allocation %q, want id=budget", pair)
		}
		budget, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid budget in %q: %w", pair, err)
		}
		out[id] = budget
	}
	return out, nil
}
