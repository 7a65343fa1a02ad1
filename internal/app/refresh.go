package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-price-sync/internal/alerting"
	"portfolio-price-sync/internal/scheduler"
	"portfolio-price-sync/internal/storage"
	"portfolio-price-sync/internal/updater"
)

// Refresh executes one full price update cycle: load current holdings,
// fetch and validate quotes, append the new records, persist alerts and
// notify the configured channels.
func (a *App) Refresh(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot refresh prices")
	}
	if closeStore != nil {
		defer closeStore()
	}

	outcome, err := a.refreshWithStore(ctx, store)
	if err != nil {
		return err
	}

	printOutcome(outcome)
	return nil
}

func (a *App) refreshWithStore(ctx context.Context, store *storage.Store) (updater.Outcome, error) {
	holdings, err := loadHoldings(ctx, store)
	if err != nil {
		return updater.Outcome{}, err
	}
	if len(holdings) == 0 {
		a.Logger.Info().Msg("no holdings found; nothing to refresh")
		return updater.Outcome{}, nil
	}

	up := updater.New(a.newMarketData(), a.newValidator(), &recordWriter{store: store}, a.Logger, nil)

	runAt := time.Now().UTC()
	outcome, err := up.Run(ctx, holdings)
	if err != nil {
		return outcome, err
	}

	a.persistAlerts(ctx, store, outcome)
	a.notifyOutcome(ctx, runAt, outcome)
	return outcome, nil
}

// Watch runs refresh cycles on the configured interval until interrupted.
// A Postgres advisory lock keeps concurrent watchers from double-writing.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot watch")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting watch mode")

	err = sched.Run(ctx, func(cycleCtx context.Context, cycle time.Time) error {
		release, acquired, lockErr := store.TryAdvisoryLock(cycleCtx, a.Config.Scheduler.AdvisoryLockKey)
		if lockErr != nil {
			return lockErr
		}
		if !acquired {
			a.Logger.Warn().Time("cycle", cycle).Msg("another watcher holds the lock; skipping cycle")
			return nil
		}
		defer release()

		_, runErr := a.refreshWithStore(cycleCtx, store)
		return runErr
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.Logger.Info().Msg("watch mode stopped")
	return nil
}

func loadHoldings(ctx context.Context, store *storage.Store) ([]updater.Holding, error) {
	records, err := store.ListCurrentHoldings(ctx)
	if err != nil {
		return nil, err
	}

	holdings := make([]updater.Holding, 0, len(records))
	for _, rec := range records {
		holdings = append(holdings, updater.Holding{
			ID:        rec.AssetID,
			AssetName: rec.AssetName,
			Ticker:    rec.Ticker,
			ISIN:      rec.ISIN,
			UnitPrice: rec.UnitPrice,
			Amount:    rec.Amount,
			Currency:  rec.Currency,
		})
	}
	return holdings, nil
}

func (a *App) persistAlerts(ctx context.Context, store storage.AlertStore, outcome updater.Outcome) {
	for _, alert := range outcome.Alerts {
		row := storage.PriceAlert{
			AssetID:      alert.AssetID,
			AssetName:    alert.AssetName,
			AlertType:    alert.Type,
			Anomaly:      string(alert.Anomaly),
			VariationPct: decimal.NewFromFloat(alert.VariationPct),
			Message:      alert.Message,
		}
		if alert.SplitRatio != nil {
			row.SplitRatio = alert.SplitRatio.String()
		}
		if _, err := store.InsertPriceAlert(ctx, row); err != nil {
			a.Logger.Error().Err(err).Int64("asset_id", alert.AssetID).Msg("failed to persist price alert")
		}
	}
}

func (a *App) notifyOutcome(ctx context.Context, runAt time.Time, outcome updater.Outcome) {
	if !a.Config.Alerting.Enabled {
		return
	}
	notifier := a.newNotifier()
	if notifier == nil {
		return
	}

	note := alerting.Notification{
		RunAt:    runAt,
		Updated:  outcome.Updated,
		Errors:   len(outcome.Errors),
		Channels: a.Config.Alerting.Channels,
	}
	for _, alert := range outcome.Alerts {
		note.AnomalyLines = append(note.AnomalyLines, formatAlertLine(alert))
	}
	for _, manual := range outcome.ManualUpdates {
		note.ManualLines = append(note.ManualLines, fmt.Sprintf("%s (%s): %s", manual.AssetName, manual.ISIN, manual.Reason))
	}
	if note.Empty() {
		return
	}

	if err := notifier.Notify(ctx, note); err != nil {
		a.Logger.Error().Err(err).Msg("failed to dispatch notification")
	}
}

func formatAlertLine(alert updater.Alert) string {
	line := fmt.Sprintf("%s [%s] %s: %+.2f%%", alert.AssetName, alert.Symbol, alert.Anomaly, alert.VariationPct)
	if alert.SplitRatio != nil {
		line += fmt.Sprintf(" (split %s)", alert.SplitRatio)
	}
	if alert.Message != "" {
		line += " " + alert.Message
	}
	return line
}

func printOutcome(outcome updater.Outcome) {
	fmt.Fprintf(os.Stdout, "updated %d asset(s), %d skipped, %d error(s), %d manual update(s)\n",
		outcome.Updated, len(outcome.Skipped), len(outcome.Errors), len(outcome.ManualUpdates))
	for _, skipped := range outcome.Skipped {
		fmt.Fprintf(os.Stdout, "  skipped %s: %s\n", skipped.AssetName, skipped.Reason)
	}
	for _, assetErr := range outcome.Errors {
		fmt.Fprintf(os.Stdout, "  error %s: %s\n", assetErr.AssetName, assetErr.Message)
	}
	for _, manual := range outcome.ManualUpdates {
		fmt.Fprintf(os.Stdout, "  manual update required for %s (%s): %s\n", manual.AssetName, manual.ISIN, manual.Reason)
	}
}

// recordWriter adapts the storage layer to the updater's history sink.
type recordWriter struct {
	store *storage.Store
}

func (w *recordWriter) AppendHistoricalRecord(ctx context.Context, rec updater.HistoricalRecord) (int64, error) {
	return w.store.AppendRecord(ctx, rec.AssetID, rec.Ticker, rec.Amount, rec.Price, rec.TotalValue, rec.Currency, rec.Date, rec.Note)
}

var _ updater.HistoryWriter = (*recordWriter)(nil)
