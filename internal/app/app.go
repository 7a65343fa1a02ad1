package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"portfolio-price-sync/internal/alerting"
	"portfolio-price-sync/internal/config"
	"portfolio-price-sync/internal/marketdata"
	"portfolio-price-sync/internal/storage"
	"portfolio-price-sync/internal/validation"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newMarketData builds a fresh quote service with empty caches. One instance
// per refresh run keeps cache lifetime request-scoped.
func (a *App) newMarketData() *marketdata.Service {
	primary := marketdata.NewTwelveData(marketdata.TwelveDataOptions{
		BaseURL:   a.Config.TwelveData.BaseURL,
		APIKey:    a.Config.TwelveData.APIKey,
		Timeout:   a.Config.TwelveData.RequestTimeout,
		UserAgent: a.Config.TwelveData.UserAgent,
	}, a.Logger)

	secondary := marketdata.NewYahoo(marketdata.YahooOptions{
		BaseURL:   a.Config.Yahoo.BaseURL,
		Timeout:   a.Config.Yahoo.RequestTimeout,
		UserAgent: a.Config.Yahoo.UserAgent,
	}, a.Logger)

	issuer := marketdata.NewIssuerNAV(marketdata.IssuerNAVOptions{
		BaseURL:   a.Config.IssuerNAV.BaseURL,
		Timeout:   a.Config.IssuerNAV.RequestTimeout,
		UserAgent: a.Config.IssuerNAV.UserAgent,
	}, a.Logger)

	resolver := marketdata.NewResolver(a.Config.OverrideTable(), a.Config.Providers, primary, a.Logger)

	return marketdata.NewService(resolver, primary, secondary, issuer, marketdata.ServiceOptions{
		Providers: a.Config.Providers,
		Retry:     a.Config.Retry,
		Breaker:   a.Config.Breaker,
	}, a.Logger)
}

func (a *App) newValidator() *validation.Validator {
	return validation.New(a.Config.Validation)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Connect(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// ExportOptions hold parameters for exporting an asset's price history.
type ExportOptions struct {
	AssetID   int64
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}
