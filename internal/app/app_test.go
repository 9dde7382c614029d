package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fromlifetolines/lumina-ados/internal/config"
)

const customersJSON = `[
  {"id":"c1","name":"Lin","email":"lin@example.com","total_spent":"1200","status":"whale","last_purchase_date":"2025-10-01T08:00:00Z","source":"google"},
  {"id":"c2","name":"Chen","email":"chen@example.com","total_spent":"80","status":"at_risk","last_purchase_date":"2025-09-12T08:00:00Z","source":"meta"},
  {"id":"c3","name":"Wu","email":"wu@example.com","total_spent":null,"status":"promising","created_at":"2025-10-05T08:00:00Z","source":"seo"}
]`

func newTestApp(t *testing.T, extra string) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	customers := filepath.Join(dir, "customers.json")
	require.NoError(t, os.WriteFile(customers, []byte(customersJSON), 0o600))

	body := "source:\n  seed: 7\n  days: 30\ncustomers:\n  file: " + customers + "\n" + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	var out bytes.Buffer
	a := NewApp(cfg, zerolog.Nop())
	a.Out = &out
	return a, &out
}

func TestSimulateProjectsAgainstBaseline(t *testing.T) {
	a, out := newTestApp(t, "")

	result, err := a.Simulate(context.Background(), SimulateOptions{Set: map[string]decimal.Decimal{"meta": decimal.NewFromInt(25000)}})
	require.NoError(t, err)
	require.Equal(t, "158650", result.TotalRevenue.String())
	require.Equal(t, "15750", result.RevenueLift.String())
	require.Equal(t, "142900", result.BaselineRevenue.String())

	text := out.String()
	require.Contains(t, text, "Meta")
	require.Contains(t, text, "yes")
	require.Contains(t, text, "+NT$15,750")
	require.Contains(t, text, "Model: flat")
}

func TestSimulateDecayModel(t *testing.T) {
	a, _ := newTestApp(t, "")
	png := filepath.Join(t.TempDir(), "charts", "projection.png")
	result, err := a.Simulate(context.Background(), SimulateOptions{Set: map[string]decimal.Decimal{"meta": decimal.NewFromInt(37500)}, Model: "decay", PNGPath: png})
	require.NoError(t, err)
	info, err := os.Stat(png)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
	for _, ch := range result.Channels {
		if ch.ID == "meta" {
			require.Equal(t, "3.325", ch.EffectiveRoas.String())
		}
	}
}

func TestSimulateRejects(t *testing.T) {
	a, _ := newTestApp(t, "")
	ctx := context.Background()

	_, err := a.Simulate(ctx, SimulateOptions{Set: map[string]decimal.Decimal{"seo": decimal.NewFromInt(1)}})
	require.ErrorContains(t, err, "unknown channels: seo")

	_, err = a.Simulate(ctx, SimulateOptions{Set: map[string]decimal.Decimal{"meta": decimal.NewFromInt(-1)}})
	require.Error(t, err)

	_, err = a.Simulate(ctx, SimulateOptions{Model: "sigmoid"})
	require.Error(t, err)

	_, err = a.Simulate(ctx, SimulateOptions{Apply: true})
	require.ErrorContains(t, err, "database.dsn")
}

func TestForecast(t *testing.T) {
	a, out := newTestApp(t, "currency:\n  code: usd\n")
	require.NoError(t, a.Forecast(ForecastOptions{Budget: decimal.NewFromInt(100000), Roas: decimal.NewFromInt(3)}))
	text := out.String()
	require.Contains(t, text, "Revenue: $9,600")
	require.Contains(t, text, "Profit:  +$6,400")

	require.Error(t, a.Forecast(ForecastOptions{Budget: decimal.NewFromInt(-1)}))
}

func TestParseAllocation(t *testing.T) {
	got, err := ParseAllocation([]string{"meta=25000", " google = 1.5 "})
	require.NoError(t, err)
	require.Equal(t, "25000", got["meta"].String())
	require.Equal(t, "1.5", got["google"].String())

	for _, bad := range []string{"meta", "=5", "meta=abc"} {
		_, err := ParseAllocation([]string{bad})
		require.Error(t, err, bad)
	}
}

func TestReport(t *testing.T) {
	a, out := newTestApp(t, "")
	require.NoError(t, a.Report(context.Background(), ReportOptions{Top: 5}))

	text := out.String()
	require.Contains(t, text, "KPI dashboard  source=all  window=30d")
	require.Contains(t, text, "Customers")
	require.Contains(t, text, "Channels")
	require.Contains(t, text, "blended")
	require.Contains(t, text, "Top customers (1)")
	require.Contains(t, text, "Lin")
	require.Contains(t, text, "Recommendations")
	// three customers, one at risk
	require.Contains(t, text, "33.3%")
	require.Contains(t, text, "[ALERT]")
}

func TestReportSourceFilter(t *testing.T) {
	a, out := newTestApp(t, "")
	require.NoError(t, a.Report(context.Background(), ReportOptions{Window: Window{Source: "google"}}))
	require.Contains(t, out.String(), "source=google")
	require.NotContains(t, out.String(), "[ALERT]")
}

func TestExportWritesAllFormats(t *testing.T) {
	a, _ := newTestApp(t, "")
	dir := t.TempDir()
	opts := ExportOptions{
		CSVPath:   filepath.Join(dir, "out", "daily.csv"),
		PNGPath:   filepath.Join(dir, "out", "daily.png"),
		XLSXPath:  filepath.Join(dir, "out", "dashboard.xlsx"),
		MaxPoints: 10,
	}
	require.NoError(t, a.Export(context.Background(), opts))

	file, err := os.Open(opts.CSVPath)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 11)
	require.Equal(t, "date", rows[0][0])

	info, err := os.Stat(opts.PNGPath)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	book, err := excelize.OpenFile(opts.XLSXPath)
	require.NoError(t, err)
	defer book.Close()
	require.Equal(t, []string{"Summary", "Daily", "Channels", "TopCustomers", "Recommendations"}, book.GetSheetList())

	daily, err := book.GetRows("Daily")
	require.NoError(t, err)
	require.Len(t, daily, 11)
	customers, err := book.GetRows("TopCustomers")
	require.NoError(t, err)
	require.Len(t, customers, 2)
	require.Equal(t, "c1", customers[1][0])
}

func TestExportNeedsOutput(t *testing.T) {
	a, _ := newTestApp(t, "")
	require.Error(t, a.Export(context.Background(), ExportOptions{}))
}

func TestDownsample(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.Equal(t, []int{0, 3, 6, 9}, downsample(items, 4))
	require.Equal(t, items, downsample(items, 0))
	require.Equal(t, items, downsample(items, 20))
	require.Equal(t, []int{9}, downsample(items, 1))
}

func TestBackfillDryRun(t *testing.T) {
	a, _ := newTestApp(t, "")
	require.NoError(t, a.Backfill(context.Background(), BackfillOptions{Days: 7, DryRun: true, Customers: true}))

	require.Error(t, a.Backfill(context.Background(), BackfillOptions{Days: 7}))
}

func TestPlatformConfigsSkipOrganic(t *testing.T) {
	a, _ := newTestApp(t, "")
	configs := a.platformConfigs()
	require.Len(t, configs, 4)
	_, ok := configs["seo"]
	require.False(t, ok)
	require.True(t, strings.EqualFold(configs["google"].DisplayName, "Google Ads"))
}
