package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fromlifetolines/lumina-ados/internal/metrics"
)

// FileCustomers reads customer records from a JSON export of the CRM table.
type FileCustomers struct {
	path   string
	logger zerolog.Logger
}

// NewFileCustomers constructs a file-backed customer source.
func NewFileCustomers(path string, logger zerolog.Logger) *FileCustomers {
	return &FileCustomers{path: path, logger: logger.With().Str("component", "file_customers").Logger()}
}

// ListCustomers loads the file on every call so edits are picked up.
func (f *FileCustomers) ListCustomers(ctx context.Context, src string) ([]metrics.CustomerRecord, error) {
	if f.path == "" {
		return nil, fmt.Errorf("customers.file not configured")
	}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read customers file: %w", err)
	}

	var rows []customerRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode customers file: %w", err)
	}

	records := make([]metrics.CustomerRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	records = metrics.FilterCustomers(records, metrics.CustomerFilter{Source: src}, time.Now())

	f.logger.Debug().Str("source", src).Int("count", len(records)).Msg("customers loaded")
	return records, nil
}

// customerRow mirrors the CRM column names.
type customerRow struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Email            string              `json:"email"`
	TotalSpent       decimal.NullDecimal `json:"total_spent"`
	Status           string              `json:"status"`
	LastPurchaseDate *time.Time          `json:"last_purchase_date"`
	CreatedAt        *time.Time          `json:"created_at"`
	Source           string              `json:"source"`
}

func (r customerRow) record() metrics.CustomerRecord {
	rec := metrics.CustomerRecord{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		TotalSpent:   r.TotalSpent,
		Status:       metrics.ParseStatus(r.Status),
		LastPurchase: r.LastPurchaseDate,
		Source:       r.Source,
	}
	if r.CreatedAt != nil {
		rec.CreatedAt = r.CreatedAt.UTC()
	}
	return rec
}

var _ CustomerSource = (*FileCustomers)(nil)
