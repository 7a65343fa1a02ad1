// Package updater walks the current holdings and drives the resolve → fetch
// → validate pipeline, deciding per asset whether to record an automatic
// update, request a manual one, or skip.
package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"portfolio-price-sync/internal/marketdata"
	"portfolio-price-sync/internal/validation"
)

// Markers stored in the note of a placeholder record awaiting a manual price.
const (
	ManualUpdateNote    = "[MANUAL UPDATE REQUIRED]"
	ManualUpdateMessage = "price carried over from the previous record; enter the current price by hand"
)

// Alert type tags surfaced in the outcome.
const (
	AlertPriceAnomaly         = "price_anomaly"
	AlertValidationRejected   = "validation_rejected"
	AlertManualUpdateRequired = "manual_update_required"
)

// Holding is one current portfolio position as exposed by the caller.
type Holding struct {
	ID        int64
	AssetName string
	Ticker    string
	ISIN      string
	UnitPrice decimal.Decimal
	Amount    decimal.Decimal
	Currency  string
}

// HistoricalRecord is the single outbound persistence contract: append one
// new snapshot row for an asset. The updater never reads back.
type HistoricalRecord struct {
	AssetID    int64
	Ticker     string
	Price      decimal.Decimal
	Amount     decimal.Decimal
	TotalValue decimal.Decimal
	Currency   string
	Date       time.Time
	Note       string
}

// HistoryWriter appends historical snapshot rows.
type HistoryWriter interface {
	AppendHistoricalRecord(ctx context.Context, rec HistoricalRecord) (int64, error)
}

// PriceSource is the slice of the market-data service the updater needs.
type PriceSource interface {
	Configured() bool
	LatestPrice(ctx context.Context, ticker, isin, name string) (marketdata.Quote, error)
}

// Alert summarises an anomaly surfaced to the user.
type Alert struct {
	Type         string
	AssetID      int64
	AssetName    string
	Symbol       string
	Anomaly      validation.AnomalyType
	VariationPct float64
	SplitRatio   *validation.SplitRatio
	Reason       string
	Message      string
}

// SkippedAsset names an asset left untouched and why.
type SkippedAsset struct {
	AssetID   int64
	AssetName string
	Reason    string
}

// AssetError names an asset that errored and the cause.
type AssetError struct {
	AssetID   int64
	AssetName string
	Message   string
}

// ManualUpdate names an asset that needs a human price entry.
type ManualUpdate struct {
	AssetID   int64
	AssetName string
	ISIN      string
	Reason    string
	RecordID  int64
}

// Detail maps an asset to the record its run produced.
type Detail struct {
	AssetID     int64
	NewRecordID int64
	Price       decimal.Decimal
	Manual      bool
}

// Outcome aggregates one full run. The run never aborts because one asset
// failed; every asset attempted lands in exactly one bucket.
type Outcome struct {
	Updated       int
	Skipped       []SkippedAsset
	Errors        []AssetError
	Alerts        []Alert
	ManualUpdates []ManualUpdate
	Details       []Detail
}

// Updater orchestrates one update cycle.
type Updater struct {
	source    PriceSource
	validator *validation.Validator
	writer    HistoryWriter
	logger    zerolog.Logger
	now       func() time.Time
}

// New constructs an updater. The clock is injectable for tests; pass nil to
// use time.Now.
func New(source PriceSource, validator *validation.Validator, writer HistoryWriter, logger zerolog.Logger, now func() time.Time) *Updater {
	if now == nil {
		now = time.Now
	}
	return &Updater{
		source:    source,
		validator: validator,
		writer:    writer,
		logger:    logger.With().Str("component", "updater").Logger(),
		now:       now,
	}
}

// Run processes every holding sequentially and returns the aggregate
// outcome. A missing provider credential aborts before the first asset;
// cancellation stops before the next asset's network call and returns the
// partial outcome alongside the context error.
func (u *Updater) Run(ctx context.Context, holdings []Holding) (Outcome, error) {
	if !u.source.Configured() {
		return Outcome{}, marketdata.ErrNotConfigured
	}

	var outcome Outcome
	for _, holding := range holdings {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		u.processHolding(ctx, holding, &outcome)
	}

	u.logger.Info().
		Int("updated", outcome.Updated).
		Int("skipped", len(outcome.Skipped)).
		Int("errors", len(outcome.Errors)).
		Int("manual", len(outcome.ManualUpdates)).
		Msg("update run complete")
	return outcome, nil
}

func (u *Updater) processHolding(ctx context.Context, holding Holding, outcome *Outcome) {
	if holding.Ticker == "" && holding.ISIN == "" {
		outcome.Skipped = append(outcome.Skipped, SkippedAsset{
			AssetID:   holding.ID,
			AssetName: holding.AssetName,
			Reason:    "no ticker or ISIN",
		})
		return
	}

	quote, err := u.source.LatestPrice(ctx, holding.Ticker, holding.ISIN, holding.AssetName)
	if err != nil {
		u.handleFetchFailure(ctx, holding, err, outcome)
		return
	}

	result := u.validator.Validate(holding.UnitPrice, quote.Price, holding.Currency, quote.Currency)
	if !result.IsValid {
		u.logger.Warn().Int64("asset_id", holding.ID).
			Str("anomaly", string(result.Anomaly)).
			Float64("variation_pct", result.VariationPct).
			Msg("price update rejected by validator")
		outcome.Errors = append(outcome.Errors, AssetError{
			AssetID:   holding.ID,
			AssetName: holding.AssetName,
			Message:   result.Message,
		})
		outcome.Alerts = append(outcome.Alerts, Alert{
			Type:         AlertValidationRejected,
			AssetID:      holding.ID,
			AssetName:    holding.AssetName,
			Symbol:       quote.Symbol,
			Anomaly:      result.Anomaly,
			VariationPct: result.VariationPct,
			SplitRatio:   result.SplitRatio,
			Message:      result.Message,
		})
		return
	}

	total := quote.Price.Mul(holding.Amount)
	recordID, err := u.writer.AppendHistoricalRecord(ctx, HistoricalRecord{
		AssetID:    holding.ID,
		Ticker:     quote.Symbol,
		Price:      quote.Price,
		Amount:     holding.Amount,
		TotalValue: total,
		Currency:   quote.Currency,
		Date:       u.now(),
	})
	if err != nil {
		outcome.Errors = append(outcome.Errors, AssetError{
			AssetID:   holding.ID,
			AssetName: holding.AssetName,
			Message:   fmt.Sprintf("append historical record: %v", err),
		})
		return
	}

	outcome.Updated++
	outcome.Details = append(outcome.Details, Detail{
		AssetID:     holding.ID,
		NewRecordID: recordID,
		Price:       quote.Price,
	})

	if result.Flagged() {
		outcome.Alerts = append(outcome.Alerts, Alert{
			Type:         AlertPriceAnomaly,
			AssetID:      holding.ID,
			AssetName:    holding.AssetName,
			Symbol:       quote.Symbol,
			Anomaly:      result.Anomaly,
			VariationPct: result.VariationPct,
			SplitRatio:   result.SplitRatio,
			Message:      result.Message,
		})
	}

	u.logger.Debug().Int64("asset_id", holding.ID).
		Str("symbol", quote.Symbol).
		Str("price", quote.Price.String()).
		Str("provider", quote.Provider).
		Msg("asset updated")
}

// handleFetchFailure sorts a failed fetch into skipped, manual-review, or
// errored. An unavailable issuer NAV creates a placeholder record carrying
// the previous price so the user has a row to fill in.
func (u *Updater) handleFetchFailure(ctx context.Context, holding Holding, err error, outcome *Outcome) {
	if errors.Is(err, marketdata.ErrUnresolvable) {
		outcome.Skipped = append(outcome.Skipped, SkippedAsset{
			AssetID:   holding.ID,
			AssetName: holding.AssetName,
			Reason:    err.Error(),
		})
		return
	}

	if marketdata.QuoteReason(err) == marketdata.ReasonIssuerNAVUnavailable {
		note := ManualUpdateNote + " " + ManualUpdateMessage
		recordID, writeErr := u.writer.AppendHistoricalRecord(ctx, HistoricalRecord{
			AssetID:    holding.ID,
			Ticker:     holding.Ticker,
			Price:      holding.UnitPrice,
			Amount:     holding.Amount,
			TotalValue: holding.UnitPrice.Mul(holding.Amount),
			Currency:   holding.Currency,
			Date:       u.now(),
			Note:       note,
		})
		if writeErr != nil {
			outcome.Errors = append(outcome.Errors, AssetError{
				AssetID:   holding.ID,
				AssetName: holding.AssetName,
				Message:   fmt.Sprintf("append manual placeholder: %v", writeErr),
			})
			return
		}

		outcome.ManualUpdates = append(outcome.ManualUpdates, ManualUpdate{
			AssetID:   holding.ID,
			AssetName: holding.AssetName,
			ISIN:      holding.ISIN,
			Reason:    marketdata.ReasonIssuerNAVUnavailable,
			RecordID:  recordID,
		})
		outcome.Alerts = append(outcome.Alerts, Alert{
			Type:      AlertManualUpdateRequired,
			AssetID:   holding.ID,
			AssetName: holding.AssetName,
			Reason:    marketdata.ReasonIssuerNAVUnavailable,
			Message:   fmt.Sprintf("issuer NAV unavailable for %s; placeholder record created", holding.AssetName),
		})
		outcome.Details = append(outcome.Details, Detail{
			AssetID:     holding.ID,
			NewRecordID: recordID,
			Price:       holding.UnitPrice,
			Manual:      true,
		})
		return
	}

	outcome.Errors = append(outcome.Errors, AssetError{
		AssetID:   holding.ID,
		AssetName: holding.AssetName,
		Message:   err.Error(),
	})
}
