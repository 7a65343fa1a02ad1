package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"portfolio-price-sync/internal/logging"
	"portfolio-price-sync/internal/marketdata"
	"portfolio-price-sync/internal/retry"
	"portfolio-price-sync/internal/validation"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig                  `mapstructure:"app"`
	Logging    logging.Config             `mapstructure:"logging"`
	Database   DatabaseConfig             `mapstructure:"database"`
	Scheduler  SchedulerConfig            `mapstructure:"scheduler"`
	TwelveData TwelveDataConfig           `mapstructure:"twelvedata"`
	Yahoo      YahooConfig                `mapstructure:"yahoo"`
	IssuerNAV  IssuerNAVConfig            `mapstructure:"issuer_nav"`
	Providers  marketdata.ProviderConfig  `mapstructure:"providers"`
	Retry      retry.Policy               `mapstructure:"retry"`
	Breaker    retry.BreakerSettings      `mapstructure:"breaker"`
	Validation validation.Thresholds      `mapstructure:"validation"`
	Overrides  OverridesConfig            `mapstructure:"overrides"`
	Alerting   AlertingConfig             `mapstructure:"alerting"`
	Export     ExportConfig               `mapstructure:"export"`
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
}

// SchedulerConfig governs the watch-mode refresh cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// TwelveDataConfig covers the primary quote provider.
type TwelveDataConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// YahooConfig covers the secondary free provider.
type YahooConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// IssuerNAVConfig covers the issuer NAV endpoint.
type IssuerNAVConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// OverridesConfig lets deployments extend the built-in resolution tables.
type OverridesConfig struct {
	Manual  map[string]marketdata.Override   `mapstructure:"manual"`
	Issuers map[string]marketdata.IssuerFund `mapstructure:"issuers"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PORTFOLIOSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The original deployment exported the key under this plain name.
	_ = v.BindEnv("twelvedata.api_key", "PORTFOLIOSYNC_TWELVEDATA_API_KEY", "TWELVE_DATA_API_KEY")

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
	v.SetDefault("app.name", "portfoliosync")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70667379))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("twelvedata.base_url", "https://api.twelvedata.com")
	v.SetDefault("twelvedata.request_timeout", "10s")
	v.SetDefault("twelvedata.user_agent", "portfoliosync/1.0")

	v.SetDefault("yahoo.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("yahoo.request_timeout", "10s")

	v.SetDefault("issuer_nav.base_url", "https://www.blackrock.com/tools/hackathon/performance")
	v.SetDefault("issuer_nav.request_timeout", "10s")

	v.SetDefault("providers.manual_override.enabled", true)
	v.SetDefault("providers.manual_override.priority", 0)
	v.SetDefault("providers.twelvedata.enabled", true)
	v.SetDefault("providers.twelvedata.priority", 1)
	v.SetDefault("providers.yahoo.enabled", true)
	v.SetDefault("providers.yahoo.priority", 2)
	v.SetDefault("providers.issuer_nav.enabled", true)
	v.SetDefault("providers.issuer_nav.priority", 3)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", "1s")
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("retry.max_delay", "30s")

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown", "60s")

	v.SetDefault("validation.warning_pct", 20.0)
	v.SetDefault("validation.critical_pct", 50.0)
	v.SetDefault("validation.split_tolerance", 0.15)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be greater than zero")
	}
	if c.Validation.WarningPct > 0 && c.Validation.CriticalPct > 0 &&
		c.Validation.WarningPct >= c.Validation.CriticalPct {
		return fmt.Errorf("validation.warning_pct must be below validation.critical_pct")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// OverrideTable merges the built-in resolution tables with any configured
// extensions. Configured entries win over the defaults.
func (c *Config) OverrideTable() *marketdata.OverrideTable {
	table := marketdata.DefaultOverrides()
	for isin, override := range c.Overrides.Manual {
		table.Manual[strings.ToUpper(isin)] = override
	}
	for isin, fund := range c.Overrides.Issuers {
		key := strings.ToUpper(isin)
		if fund.ISIN == "" {
			fund.ISIN = key
		}
		table.Issuers[key] = fund
	}
	return table
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
