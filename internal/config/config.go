package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fromlifetolines/lumina-ados/internal/logging"
	"github.com/fromlifetolines/lumina-ados/internal/metrics"
)

const (
	SourceSynthetic = "synthetic"
	SourceFeed      = "feed"
	SourceDatabase  = "database"

	CustomersFile     = "file"
	CustomersDatabase = "database"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Source     SourceConfig     `mapstructure:"source"`
	Customers  CustomersConfig  `mapstructure:"customers"`
	Channels   []ChannelConfig  `mapstructure:"channels" validate:"required,min=1,dive"`
	Projection ProjectionConfig `mapstructure:"projection"`
	KPI        KPIConfig        `mapstructure:"kpi"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
	Server     ServerConfig     `mapstructure:"server"`
	Currency   CurrencyConfig   `mapstructure:"currency"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AdviceRetention time.Duration `mapstructure:"advice_retention"`
}

// SchedulerConfig governs refresh cadence. Cron, when set, takes precedence
// over Interval.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Cron            string        `mapstructure:"cron"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// SourceConfig selects where channel series come from.
type SourceConfig struct {
	Kind string     `mapstructure:"kind" validate:"oneof=synthetic feed database"`
	Days int        `mapstructure:"days" validate:"gt=0,lte=366"`
	Seed int64      `mapstructure:"seed"`
	Feed FeedConfig `mapstructure:"feed"`
}

// FeedConfig captures the HTTP ingestion feed.
type FeedConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CustomersConfig selects where CRM records come from.
type CustomersConfig struct {
	Kind string `mapstructure:"kind" validate:"oneof=file database"`
	File string `mapstructure:"file"`
}

// ChannelConfig describes one acquisition channel: its projection baseline and
// its synthetic generation profile. Organic channels are excluded from budget
// projection.
type ChannelConfig struct {
	ID             string            `mapstructure:"id" validate:"required"`
	DisplayName    string            `mapstructure:"display_name"`
	BaselineRoas   float64           `mapstructure:"baseline_roas" validate:"gte=0"`
	BaselineBudget float64           `mapstructure:"baseline_budget" validate:"gte=0"`
	ColorHint      string            `mapstructure:"color_hint"`
	Organic        bool              `mapstructure:"organic"`
	DailySpend     float64           `mapstructure:"daily_spend" validate:"gte=0"`
	Roas           metrics.RoasRange `mapstructure:"roas"`
}

// ProjectionConfig tunes the budget projection model.
type ProjectionConfig struct {
	Model  string `mapstructure:"model" validate:"oneof=flat decay"`
	Strict bool   `mapstructure:"strict"`
}

// KPIConfig tunes KPI derivation.
type KPIConfig struct {
	SpendEstimation string  `mapstructure:"spend_estimation" validate:"oneof=integrations industry_roas"`
	IndustryRoas    float64 `mapstructure:"industry_roas" validate:"gt=0"`
	Source          string  `mapstructure:"source"`
}

// AlertingConfig defines digest routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 推送参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points" validate:"gt=0"`
	TopCustomers  int `mapstructure:"top_customers" validate:"gte=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CurrencyConfig selects the display currency.
type CurrencyConfig struct {
	Code string `mapstructure:"code" validate:"oneof=TWD USD"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LUMINA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Currency.Code = strings.ToUpper(strings.TrimSpace(cfg.Currency.Code))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "lumina")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.cron", "")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6c756d69))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("source.kind", SourceSynthetic)
	v.SetDefault("source.days", 30)
	v.SetDefault("source.seed", 0)
	v.SetDefault("source.feed.base_url", "")
	v.SetDefault("source.feed.api_key", "")
	v.SetDefault("source.feed.request_timeout", "10s")
	v.SetDefault("source.feed.user_agent", "lumina/1.0")

	v.SetDefault("customers.kind", CustomersFile)
	v.SetDefault("customers.file", "customers.json")

	v.SetDefault("channels", DefaultChannels())

	v.SetDefault("projection.model", "flat")
	v.SetDefault("projection.strict", false)

	v.SetDefault("kpi.spend_estimation", string(metrics.SpendFromIntegrations))
	v.SetDefault("kpi.industry_roas", 3.5)
	v.SetDefault("kpi.source", metrics.SourceAll)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "6h")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 366)
	v.SetDefault("export.top_customers", 15)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("currency.code", "TWD")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.advice_retention", "0s")
}

// DefaultChannels is the stock channel set in the shape viper decodes.
func DefaultChannels() []map[string]any {
	return []map[string]any{
		{"id": "google", "display_name": "Google Ads", "baseline_roas": 4.2, "baseline_budget": 12000, "color_hint": "#ea4335", "daily_spend": 500, "roas": map[string]any{"min": 3.5, "max": 5.0}},
		{"id": "meta", "display_name": "Meta", "baseline_roas": 3.5, "baseline_budget": 15000, "color_hint": "#3b82f6", "daily_spend": 800, "roas": map[string]any{"min": 2.0, "max": 3.5}},
		{"id": "tiktok", "display_name": "TikTok", "baseline_roas": 2.8, "baseline_budget": 10000, "color_hint": "#000000", "daily_spend": 300, "roas": map[string]any{"min": 1.5, "max": 4.0}},
		{"id": "youtube", "display_name": "YouTube", "baseline_roas": 1.5, "baseline_budget": 8000, "color_hint": "#ff0000"},
		{"id": "seo", "display_name": "SEO", "organic": true, "daily_spend": 50, "roas": map[string]any{"min": 8.0, "max": 14.0}},
	}
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("validate config: %w", err)
	}

	if c.Scheduler.Cron == "" && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}

	seen := make(map[string]struct{}, len(c.Channels))
	for i, ch := range c.Channels {
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("channels[%d]: duplicate id %q", i, ch.ID)
		}
		seen[ch.ID] = struct{}{}
		if !ch.Organic && ch.BaselineRoas <= 0 {
			return fmt.Errorf("channels[%d] (%s): baseline_roas must be greater than zero", i, ch.ID)
		}
		if ch.Roas.Min < 0 || ch.Roas.Min > ch.Roas.Max {
			return fmt.Errorf("channels[%d] (%s): roas.min must be between 0 and roas.max", i, ch.ID)
		}
	}

	if c.Source.Kind == SourceFeed && c.Source.Feed.BaseURL == "" {
		return fmt.Errorf("source.feed.base_url 必须配置")
	}
	if c.Customers.Kind == CustomersFile && c.Customers.File == "" {
		return fmt.Errorf("customers.file 必须配置")
	}
	if (c.Source.Kind == SourceDatabase || c.Customers.Kind == CustomersDatabase) && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be set when source or customers read from the database")
	}
	if c.Database.AdviceRetention < 0 {
		return fmt.Errorf("database.advice_retention cannot be negative")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ResolveDays returns either the CLI override or the configured window.
func (c *Config) ResolveDays(override int) int {
	if override > 0 {
		return override
	}
	return c.Source.Days
}
