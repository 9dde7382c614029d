package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/xuri/excelize/v2"

	"github.com/fromlifetolines/lumina-ados/internal/advisory"
	"github.com/fromlifetolines/lumina-ados/internal/metrics"
	"github.com/fromlifetolines/lumina-ados/internal/service"
)

const dayLayout = "2006-01-02"

// Export renders the KPI window as CSV, PNG, and/or XLSX.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" && opts.XLSXPath == "" {
		return errors.New("at least one of --csv, --png or --xlsx must be provided")
	}
	if opts.From != nil && opts.To != nil && opts.From.After(*opts.To) {
		return errors.New("from must not be after to")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	res, err := a.compute(ctx, opts.Window)
	if err != nil {
		return err
	}
	if len(res.Blended) == 0 {
		a.Logger.Info().Msg("no daily metrics found for export window")
	}

	daily := downsample(res.Blended, opts.MaxPoints)
	a.Logger.Info().Int("total", len(res.Blended)).Int("exported", len(daily)).Msg("exporting daily metrics")

	if opts.CSVPath != "" {
		if err := writeDailyCSV(opts.CSVPath, daily); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if len(daily) < 2 {
			a.Logger.Warn().Int("points", len(daily)).Msg("not enough points to chart; skipping png")
		} else if err := writeDailyPNG(opts.PNGPath, daily); err != nil {
			return err
		}
	}

	if opts.XLSXPath != "" {
		top := metrics.TopCustomers(res.Customers, metrics.StatusHighValue, a.Config.Export.TopCustomers)
		if err := writeWorkbook(opts.XLSXPath, res, daily, top); err != nil {
			return err
		}
	}

	return nil
}

func downsample[T any](items []T, max int) []T {
	if max <= 0 || len(items) <= max {
		return items
	}
	if max == 1 {
		return items[len(items)-1:]
	}

	result := make([]T, 0, max)
	step := float64(len(items)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(items) {
			idx = len(items) - 1
		}
		result = append(result, items[idx])
	}
	return result
}

func dailyHeader() []string {
	return []string{"date", "spend", "revenue", "impressions", "clicks", "conversions", "roas", "cpa"}
}

func writeDailyCSV(path string, daily []metrics.DailyMetric) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(dailyHeader()); err != nil {
		return err
	}

	for _, m := range daily {
		record := []string{
			m.Date.Format(dayLayout),
			m.Spend.StringFixed(2),
			m.Revenue.StringFixed(2),
			fmt.Sprint(m.Impressions),
			fmt.Sprint(m.Clicks),
			fmt.Sprint(m.Conversions),
			m.ROAS.StringFixed(2),
			m.CPA.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeDailyPNG(path string, daily []metrics.DailyMetric) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(daily))
	revenue := make([]float64, len(daily))
	spend := make([]float64, len(daily))
	roasY := make([]float64, len(daily))

	for i, m := range daily {
		x[i] = m.Date
		revenue[i] = m.Revenue.InexactFloat64()
		spend[i] = m.Spend.InexactFloat64()
		roasY[i] = m.ROAS.InexactFloat64()
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Amount",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: "ROAS",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Revenue",
				XValues: x,
				YValues: revenue,
			},
			chart.TimeSeries{
				Name:    "Spend",
				XValues: x,
				YValues: spend,
			},
			chart.TimeSeries{
				Name:    "ROAS",
				XValues: x,
				YValues: roasY,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

const (
	sheetSummary   = "Summary"
	sheetDaily     = "Daily"
	sheetChannels  = "Channels"
	sheetCustomers = "TopCustomers"
	sheetAdvice    = "Recommendations"
)

// writeWorkbook produces a multi-sheet dashboard workbook. Amounts are kept
// in the base currency as numbers so spreadsheet formulas still work.
func writeWorkbook(path string, res service.Result, daily []metrics.DailyMetric, top []metrics.CustomerRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return err
	}
	for _, name := range []string{sheetDaily, sheetChannels, sheetCustomers, sheetAdvice} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	snap := res.Report.Snapshot
	growth := res.Report.Growth
	summary := [][]any{
		{"Metric", "Value"},
		{"Source", res.Source},
		{"As of (UTC)", res.At.UTC().Format("2006-01-02 15:04:05")},
		{"Window (days)", res.Days},
		{"Total revenue", num(snap.TotalRevenue)},
		{"Spend estimate", num(snap.TotalSpendEstimate)},
		{"Customers", snap.CustomerCount},
		{"At risk", snap.AtRiskCount},
		{"Average order value", num(snap.AverageOrderValue)},
		{"Churn rate %", num(snap.ChurnRate)},
		{"Blended ROAS", num(snap.BlendedRoas)},
		{"CAC", num(snap.CAC)},
		{"LTV:CAC", num(snap.LtvToCac)},
		{"Revenue growth %", num(growth.RevenueGrowth)},
		{"Customer growth %", num(growth.CustomerGrowth)},
		{"Organic ROAS", num(res.Performance.OrganicRoas)},
		{"Paid ROAS", num(res.Performance.PaidRoas)},
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return err
	}

	rows := [][]any{toAny(dailyHeader())}
	for _, m := range daily {
		rows = append(rows, []any{m.Date.Format(dayLayout), num(m.Spend), num(m.Revenue), m.Impressions, m.Clicks, m.Conversions, num(m.ROAS), num(m.CPA)})
	}
	if err := writeRows(f, sheetDaily, rows); err != nil {
		return err
	}

	rows = [][]any{{"channel", "spend", "revenue", "impressions", "clicks", "conversions", "roas", "cpa"}}
	for _, s := range res.Series {
		t := s.Totals()
		rows = append(rows, []any{s.Channel, num(t.Spend), num(t.Revenue), t.Impressions, t.Clicks, t.Conversions, num(t.ROAS), num(t.CPA)})
	}
	if err := writeRows(f, sheetChannels, rows); err != nil {
		return err
	}

	rows = [][]any{{"id", "name", "email", "status", "source", "revenue", "last_activity"}}
	for _, c := range top {
		rows = append(rows, []any{c.ID, c.Name, c.Email, string(c.Status), c.Source, num(c.Revenue()), c.ActivityDate(res.At).Format(dayLayout)})
	}
	if err := writeRows(f, sheetCustomers, rows); err != nil {
		return err
	}

	rows = [][]any{{"rule", "category", "title", "message", "action", "impact"}}
	for _, rec := range res.Advice {
		rows = append(rows, []any{string(rec.Rule), string(rec.Category), rec.Title, rec.Message, rec.Action, rec.Impact})
	}
	if err := writeRows(f, sheetAdvice, rows); err != nil {
		return err
	}
	if advisory.Actionable(res.Advice) {
		f.SetActiveSheet(mustSheetIndex(f, sheetAdvice))
	}

	return f.SaveAs(path)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func mustSheetIndex(f *excelize.File, sheet string) int {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return 0
	}
	return idx
}

func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
