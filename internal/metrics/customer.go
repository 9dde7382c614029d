package metrics

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceAll disables the acquisition source filter.
const SourceAll = "all"

// CustomerStatus is the CRM segment of a customer.
type CustomerStatus string

const (
	StatusHighValue CustomerStatus = "high-value"
	StatusPromising CustomerStatus = "promising"
	StatusAtRisk    CustomerStatus = "at-risk"
)

// ParseStatus normalises CRM status labels, including legacy spellings.
func ParseStatus(raw string) CustomerStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch strings.ReplaceAll(s, "_", "-") {
	case "high-value", "whale", "vip":
		return StatusHighValue
	case "promising":
		return StatusPromising
	case "at-risk", "churning":
		return StatusAtRisk
	}
	return CustomerStatus(s)
}

// CustomerRecord is a CRM customer as read from persistence. TotalSpent is the
// cumulative revenue the customer generated for the business.
type CustomerRecord struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Email        string              `json:"email"`
	TotalSpent   decimal.NullDecimal `json:"total_spent"`
	Status       CustomerStatus      `json:"status"`
	LastPurchase *time.Time          `json:"last_purchase,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	Source       string              `json:"source"`
}

// Revenue returns TotalSpent, treating missing or negative values as zero.
func (c CustomerRecord) Revenue() decimal.Decimal {
	if !c.TotalSpent.Valid {
		return decimal.Zero
	}
	return NonNegative(c.TotalSpent.Decimal)
}

// ActivityDate is the last purchase date, falling back to the creation
// timestamp and then to fallback.
func (c CustomerRecord) ActivityDate(fallback time.Time) time.Time {
	if c.LastPurchase != nil && !c.LastPurchase.IsZero() {
		return *c.LastPurchase
	}
	if !c.CreatedAt.IsZero() {
		return c.CreatedAt
	}
	return fallback
}

// CustomerFilter narrows the record set before aggregation. From and To are
// inclusive day bounds on ActivityDate.
type CustomerFilter struct {
	Source string
	From   *time.Time
	To     *time.Time
}

// FilterCustomers applies f to records. The input slice is not modified.
func FilterCustomers(records []CustomerRecord, f CustomerFilter, now time.Time) []CustomerRecord {
	source := strings.TrimSpace(f.Source)
	allSources := source == "" || strings.EqualFold(source, SourceAll)

	out := make([]CustomerRecord, 0, len(records))
	for _, c := range records {
		if !allSources && c.Source != source {
			continue
		}
		day := Day(c.ActivityDate(now))
		if f.From != nil && day.Before(Day(*f.From)) {
			continue
		}
		if f.To != nil && day.After(Day(*f.To)) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// TopCustomers returns up to limit customers with the given status ordered by
// revenue, highest first. An empty status matches every customer.
func TopCustomers(records []CustomerRecord, status CustomerStatus, limit int) []CustomerRecord {
	out := make([]CustomerRecord, 0, len(records))
	for _, c := range records {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Revenue().GreaterThan(out[j].Revenue())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CustomerDaily buckets customer revenue by activity day over the last days
// ending on now. Each customer counts as one conversion on its day.
func CustomerDaily(records []CustomerRecord, days int, now time.Time) []DailyMetric {
	from, to := LastNDays(now, days)
	points := make([]DailyMetric, 0, len(records))
	for _, c := range records {
		points = append(points, NewDailyMetric(c.ActivityDate(now), decimal.Zero, c.Revenue(), 0, 0, 1))
	}
	return Contiguous(points, from, to)
}
