package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fromlifetolines/lumina-ados/internal/advisory"
	"github.com/fromlifetolines/lumina-ados/internal/currency"
	"github.com/fromlifetolines/lumina-ados/internal/metrics"
)

// Notification 封装一次建议摘要。
type Notification struct {
	At              time.Time
	Source          string
	Snapshot        metrics.KpiSnapshot
	Recommendations []advisory.Recommendation
	AdditionalMsg   string
}

// Notifier 定义摘要输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken  string
	chatID    string
	baseURL   string
	client    *http.Client
	formatter *currency.Formatter
	logger    zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 推送器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, formatter *currency.Formatter, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if formatter == nil {
		formatter = currency.MustFormatter(string(currency.TWD))
	}

	return &TelegramNotifier{
		botToken:  botToken,
		chatID:    chatID,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		formatter: formatter,
		logger:    logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    n.render(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Time("at", note.At).
		Str("source", note.Source).
		Strs("rules", advisory.Rules(note.Recommendations)).
		Msg("摘要已发送 (Telegram)")
	return nil
}

func (n *TelegramNotifier) render(note Notification) string {
	snap := note.Snapshot
	source := note.Source
	if source == "" {
		source = metrics.SourceAll
	}

	builder := strings.Builder{}
	builder.WriteString("[Lumina Advisor]\n")
	builder.WriteString(fmt.Sprintf("As of: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Source: %s\n", source))
	builder.WriteString(fmt.Sprintf("Revenue: %s  Spend: %s\n", n.formatter.Format(snap.TotalRevenue), n.formatter.Format(snap.TotalSpendEstimate)))
	builder.WriteString(fmt.Sprintf("ROAS: %sx  AOV: %s  Churn: %s%%\n", snap.BlendedRoas.StringFixed(2), n.formatter.Format(snap.AverageOrderValue), snap.ChurnRate.StringFixed(1)))
	builder.WriteString(fmt.Sprintf("Customers: %s (%d at risk)\n", n.formatter.Number(int64(snap.CustomerCount)), snap.AtRiskCount))
	for _, rec := range note.Recommendations {
		builder.WriteString(fmt.Sprintf("\n[%s] %s\n%s\n%s (%s)\n", strings.ToUpper(string(rec.Category)), rec.Title, rec.Message, rec.Action, rec.Impact))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString("\n")
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
