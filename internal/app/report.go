package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fromlifetolines/lumina-ados/internal/currency"
	"github.com/fromlifetolines/lumina-ados/internal/metrics"
	"github.com/fromlifetolines/lumina-ados/internal/service"
)

// compute runs one KPI pass for w against the configured sources.
func (a *App) compute(ctx context.Context, w Window) (service.Result, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return service.Result{}, err
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc, err := a.buildService(store, nil, nil)
	if err != nil {
		return service.Result{}, err
	}
	return svc.Compute(ctx, w.query())
}

// Report prints the KPI dashboard for the window.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	res, err := a.compute(ctx, opts.Window)
	if err != nil {
		return err
	}
	top := opts.Top
	if top <= 0 {
		top = a.Config.Export.TopCustomers
	}
	return a.printDashboard(res, top)
}

func (a *App) printDashboard(res service.Result, top int) error {
	f, err := a.formatter()
	if err != nil {
		return err
	}
	snap := res.Report.Snapshot
	growth := res.Report.Growth

	fmt.Fprintf(a.Out, "KPI dashboard  source=%s  window=%dd  as of %s UTC\n\n", res.Source, res.Days, res.At.UTC().Format(time.RFC3339))

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Metric\tValue")
	for _, row := range [][2]string{
		{"Total revenue", f.Format(snap.TotalRevenue)},
		{"Spend estimate", f.Format(snap.TotalSpendEstimate)},
		{"Customers", f.Number(int64(snap.CustomerCount))},
		{"At risk", f.Number(int64(snap.AtRiskCount))},
		{"Average order value", f.Format(snap.AverageOrderValue)},
		{"Churn rate", pct(snap.ChurnRate)},
		{"Blended ROAS", roas(snap.BlendedRoas)},
		{"CAC", f.Format(snap.CAC)},
		{"LTV:CAC", snap.LtvToCac.StringFixed(2)},
		{"Revenue growth (MoM)", signedPct(growth.RevenueGrowth)},
		{"Customer growth (MoM)", signedPct(growth.CustomerGrowth)},
		{"Organic ROAS", roas(res.Performance.OrganicRoas)},
		{"Paid ROAS", roas(res.Performance.PaidRoas)},
	} {
		fmt.Fprintf(writer, "%s\t%s\n", row[0], row[1])
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	if len(res.Series) > 0 {
		fmt.Fprintln(a.Out, "\nChannels")
		writer = tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Channel\tSpend\tRevenue\tROAS\tCPA\tConversions")
		for _, s := range res.Series {
			t := s.Totals()
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n", s.Channel, f.Format(t.Spend), f.Format(t.Revenue), roas(t.ROAS), f.Format(t.CPA), f.Number(t.Conversions))
		}
		fmt.Fprintf(writer, "blended\t%s\t%s\t%s\t%s\t%s\n", f.Format(res.Totals.Spend), f.Format(res.Totals.Revenue), roas(res.Totals.ROAS), f.Format(res.Totals.CPA), f.Number(res.Totals.Conversions))
		if err := writer.Flush(); err != nil {
			return err
		}
	}

	if customers := metrics.TopCustomers(res.Customers, metrics.StatusHighValue, top); top > 0 && len(customers) > 0 {
		fmt.Fprintf(a.Out, "\nTop customers (%d)\n", len(customers))
		writer = tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Name\tSource\tRevenue\tLast activity")
		for _, c := range customers {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", sanitizeInline(c.Name), c.Source, f.Format(c.Revenue()), c.ActivityDate(res.At).Format("2006-01-02"))
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(a.Out, "\nRecommendations")
	for _, rec := range res.Advice {
		fmt.Fprintf(a.Out, "  [%s] %s\n      %s\n      -> %s (%s)\n", strings.ToUpper(string(rec.Category)), rec.Title, rec.Message, rec.Action, rec.Impact)
	}
	return nil
}

// Scenarios prints recently applied budget scenarios.
func (a *App) Scenarios(ctx context.Context, limit int) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot list scenarios")
	}
	defer closeStore()

	scenarios, err := store.ListRecentScenarios(ctx, limit)
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		fmt.Fprintln(a.Out, "no scenarios found")
		return nil
	}
	f, err := a.formatter()
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tName\tModel\tBudget\tRevenue\tROAS\tLift")
	for _, s := range scenarios {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.CreatedAt.UTC().Format(time.RFC3339),
			sanitizeInline(s.Name),
			s.Model,
			f.Format(s.TotalBudget),
			f.Format(s.ProjectedRevenue),
			roas(s.ProjectedRoas),
			signedMoney(f, s.RevenueLift),
		)
	}
	return writer.Flush()
}

func pct(d decimal.Decimal) string {
	return d.StringFixed(1) + "%"
}

func signedPct(d decimal.Decimal) string {
	if d.Sign() > 0 {
		return "+" + pct(d)
	}
	return pct(d)
}

func roas(d decimal.Decimal) string {
	return d.StringFixed(2) + "x"
}

func signedMoney(f *currency.Formatter, d decimal.Decimal) string {
	if d.Sign() > 0 {
		return "+" + f.Format(d)
	}
	return f.Format(d)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
