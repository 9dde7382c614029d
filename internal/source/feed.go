package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fromlifetolines/lumina-ados/internal/metrics"
)

const feedDailyPath = "/daily"

// FeedOptions parameterise the HTTP metrics feed.
type FeedOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Feed pulls per-channel daily metrics from an ingestion endpoint.
type Feed struct {
	opts    FeedOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// NewFeed constructs a feed client.
func NewFeed(opts FeedOptions, logger zerolog.Logger) *Feed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Feed{
		opts:    opts,
		logger:  logger.With().Str("component", "feed_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		now:     time.Now,
	}
}

// FetchSeries requests GET {base}/daily?days=N. Rows outside the trailing
// window are dropped and missing days are zero-filled.
func (f *Feed) FetchSeries(ctx context.Context, days int) ([]metrics.Series, error) {
	if f.baseURL == "" {
		return nil, errors.New("feed base url required")
	}
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}

	endpoint := f.baseURL + feedDailyPath + "?" + url.Values{"days": {strconv.Itoa(days)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "lumina/1.0")
	}
	if f.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.opts.APIKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var res feedResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}
	if len(res.Series) == 0 {
		return nil, ErrEmptyFeed
	}

	from, to := metrics.LastNDays(f.now(), days)
	out := make([]metrics.Series, 0, len(res.Series))
	for _, s := range res.Series {
		series := metrics.Series{Channel: s.Channel, Metrics: make([]metrics.DailyMetric, 0, len(s.Metrics))}
		for _, d := range s.Metrics {
			date, err := time.Parse(time.DateOnly, d.Date)
			if err != nil {
				return nil, fmt.Errorf("parse %s date %q: %w", s.Channel, d.Date, err)
			}
			series.Metrics = append(series.Metrics, metrics.NewDailyMetric(date, d.Spend, d.Revenue, d.Impressions, d.Clicks, d.Conversions))
		}
		series.Metrics = metrics.Contiguous(series.Metrics, from, to)
		out = append(out, series)
	}

	f.logger.Debug().Int("days", days).Int("channels", len(out)).Msg("feed series fetched")
	return out, nil
}

type feedResponse struct {
	Series []struct {
		Channel string `json:"channel"`
		Metrics []struct {
			Date        string          `json:"date"`
			Spend       decimal.Decimal `json:"spend"`
			Revenue     decimal.Decimal `json:"revenue"`
			Impressions int64           `json:"impressions"`
			Clicks      int64           `json:"clicks"`
			Conversions int64           `json:"conversions"`
		} `json:"metrics"`
	} `json:"series"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("feed api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("feed api error (%d)", status)
}

var _ MetricsSource = (*Feed)(nil)
