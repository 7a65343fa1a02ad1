package updater

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-price-sync/internal/marketdata"
	"portfolio-price-sync/internal/validation"
)

type fakeSource struct {
	configured bool
	quotes     map[string]marketdata.Quote
	errors     map[string]error
}

func (f *fakeSource) Configured() bool { return f.configured }

func (f *fakeSource) LatestPrice(ctx context.Context, ticker, isin, name string) (marketdata.Quote, error) {
	key := ticker
	if key == "" {
		key = isin
	}
	if err, ok := f.errors[key]; ok {
		return marketdata.Quote{}, err
	}
	if quote, ok := f.quotes[key]; ok {
		return quote, nil
	}
	return marketdata.Quote{}, marketdata.ErrUnresolvable
}

type memoryWriter struct {
	records []HistoricalRecord
	nextID  int64
	err     error
}

func (m *memoryWriter) AppendHistoricalRecord(ctx context.Context, rec HistoricalRecord) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.nextID++
	m.records = append(m.records, rec)
	return m.nextID, nil
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
}

func newTestUpdater(source *fakeSource, writer *memoryWriter) *Updater {
	return New(source, validation.New(validation.Thresholds{}), writer, zerolog.Nop(), fixedNow)
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestRunNotConfigured(t *testing.T) {
	up := newTestUpdater(&fakeSource{configured: false}, &memoryWriter{})

	_, err := up.Run(context.Background(), []Holding{{ID: 1, Ticker: "AAPL"}})
	require.ErrorIs(t, err, marketdata.ErrNotConfigured)
}

func TestRunUpdatesNormalAsset(t *testing.T) {
	source := &fakeSource{configured: true, quotes: map[string]marketdata.Quote{
		"AAPL": {Symbol: "AAPL", Price: d("102.50"), Currency: "USD", Provider: marketdata.ProviderTwelveData},
	}}
	writer := &memoryWriter{}
	up := newTestUpdater(source, writer)

	outcome, err := up.Run(context.Background(), []Holding{{
		ID: 1, AssetName: "Apple", Ticker: "AAPL",
		UnitPrice: d("100"), Amount: d("10"), Currency: "USD",
	}})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Updated)
	assert.Empty(t, outcome.Errors)
	assert.Empty(t, outcome.Alerts)
	require.Len(t, writer.records, 1)

	rec := writer.records[0]
	assert.Equal(t, int64(1), rec.AssetID)
	assert.Equal(t, "AAPL", rec.Ticker)
	assert.True(t, rec.Price.Equal(d("102.50")))
	assert.True(t, rec.TotalValue.Equal(d("1025.00")))
	assert.Equal(t, fixedNow(), rec.Date)
}

func TestRunWritesResolvedSymbolForISINAsset(t *testing.T) {
	source := &fakeSource{configured: true, quotes: map[string]marketdata.Quote{
		"IE00B4L5Y983": {Symbol: "SWDA.MI", Price: d("101.84"), Currency: "EUR", Provider: marketdata.ProviderYahoo},
	}}
	writer := &memoryWriter{}
	up := newTestUpdater(source, writer)

	outcome, err := up.Run(context.Background(), []Holding{{
		ID: 2, AssetName: "MSCI World", ISIN: "IE00B4L5Y983",
		UnitPrice: d("100"), Amount: d("50"), Currency: "EUR",
	}})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Updated)
	require.Len(t, writer.records, 1)
	assert.Equal(t, "SWDA.MI", writer.records[0].Ticker, "the resolved symbol must be written back")
}

func TestRunSkipsAssetWithoutIdentifiers(t *testing.T) {
	source := &fakeSource{configured: true}
	up := newTestUpdater(source, &memoryWriter{})

	outcome, err := up.Run(context.Background(), []Holding{{ID: 3, AssetName: "Cash"}})
	require.NoError(t, err)

	assert.Zero(t, outcome.Updated)
	require.Len(t, outcome.Skipped, 1)
	assert.Equal(t, "no ticker or ISIN", outcome.Skipped[0].Reason)
}

func TestRunSkipsUnresolvable(t *testing.T) {
	source := &fakeSource{configured: true, errors: map[string]error{
		"XX0000000000": marketdata.ErrUnresolvable,
	}}
	up := newTestUpdater(source, &memoryWriter{})

	outcome, err := up.Run(context.Background(), []Holding{{ID: 4, AssetName: "Mystery", ISIN: "XX0000000000"}})
	require.NoError(t, err)

	assert.Zero(t, outcome.Updated)
	require.Len(t, outcome.Skipped, 1)
	assert.Empty(t, outcome.Errors)
}

func TestRunRejectsCriticalVariation(t *testing.T) {
	source := &fakeSource{configured: true, quotes: map[string]marketdata.Quote{
		"AAPL": {Symbol: "AAPL", Price: d("190.5"), Currency: "USD"},
	}}
	writer := &memoryWriter{}
	up := newTestUpdater(source, writer)

	outcome, err := up.Run(context.Background(), []Holding{{
		ID: 5, AssetName: "Apple", Ticker: "AAPL",
		UnitPrice: d("100"), Amount: d("1"), Currency: "USD",
	}})
	require.NoError(t, err)

	assert.Zero(t, outcome.Updated, "a rejected update must not count as updated")
	assert.Empty(t, writer.records, "a rejected update must not write a record")
	require.Len(t, outcome.Errors, 1)
	require.Len(t, outcome.Alerts, 1)
	assert.Equal(t, AlertValidationRejected, outcome.Alerts[0].Type)
	assert.Equal(t, validation.AnomalyCriticalVariation, outcome.Alerts[0].Anomaly)
}

func TestRunAcceptsSplitWithAlert(t *testing.T) {
	source := &fakeSource{configured: true, quotes: map[string]marketdata.Quote{
		"NVDA": {Symbol: "NVDA", Price: d("100"), Currency: "USD"},
	}}
	writer := &memoryWriter{}
	up := newTestUpdater(source, writer)

	outcome, err := up.Run(context.Background(), []Holding{{
		ID: 6, AssetName: "NVIDIA", Ticker: "NVDA",
		UnitPrice: d("400"), Amount: d("4"), Currency: "USD",
	}})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Updated, "a plausible split is accepted")
	require.Len(t, writer.records, 1)
	require.Len(t, outcome.Alerts, 1)

	alert := outcome.Alerts[0]
	assert.Equal(t, AlertPriceAnomaly, alert.Type)
	assert.Equal(t, validation.AnomalyPotentialSplit, alert.Anomaly)
	require.NotNil(t, alert.SplitRatio)
	assert.Equal(t, validation.SplitRatio{From: 1, To: 4}, *alert.SplitRatio)
}

func TestRunIssuerNAVUnavailableCreatesPlaceholder(t *testing.T) {
	navErr := &marketdata.QuoteError{
		Reason:   marketdata.ReasonIssuerNAVUnavailable,
		Provider: marketdata.ProviderIssuerNAV,
		Err:      errors.New("issuer NAV http 502"),
	}
	source := &fakeSource{configured: true, errors: map[string]error{"LU0171310955": navErr}}
	writer := &memoryWriter{}
	up := newTestUpdater(source, writer)

	outcome, err := up.Run(context.Background(), []Holding{{
		ID: 7, AssetName: "BGF World Technology", ISIN: "LU0171310955",
		UnitPrice: d("30.0"), Amount: d("120"), Currency: "EUR",
	}})
	require.NoError(t, err)

	assert.Zero(t, outcome.Updated, "a placeholder is not a successful update")
	assert.Empty(t, outcome.Errors)
	require.Len(t, outcome.ManualUpdates, 1)
	assert.Equal(t, marketdata.ReasonIssuerNAVUnavailable, outcome.ManualUpdates[0].Reason)

	require.Len(t, writer.records, 1)
	rec := writer.records[0]
	assert.True(t, rec.Price.Equal(d("30.0")), "the placeholder carries the previous price")
	assert.True(t, strings.HasPrefix(rec.Note, ManualUpdateNote))
	assert.Equal(t, fixedNow(), rec.Date)

	require.Len(t, outcome.Alerts, 1)
	assert.Equal(t, AlertManualUpdateRequired, outcome.Alerts[0].Type)

	require.Len(t, outcome.Details, 1)
	assert.True(t, outcome.Details[0].Manual)
}

func TestRunProviderErrorIsAssetError(t *testing.T) {
	source := &fakeSource{configured: true, errors: map[string]error{
		"AAPL": &marketdata.QuoteError{Reason: marketdata.ReasonProviderError, Provider: marketdata.ProviderTwelveData, Err: errors.New("http 500")},
	}}
	up := newTestUpdater(source, &memoryWriter{})

	outcome, err := up.Run(context.Background(), []Holding{{ID: 8, AssetName: "Apple", Ticker: "AAPL", UnitPrice: d("100"), Amount: d("1")}})
	require.NoError(t, err)

	assert.Zero(t, outcome.Updated)
	require.Len(t, outcome.Errors, 1)
	assert.Empty(t, outcome.ManualUpdates)
}

func TestRunWriteFailureIsAssetError(t *testing.T) {
	source := &fakeSource{configured: true, quotes: map[string]marketdata.Quote{
		"AAPL": {Symbol: "AAPL", Price: d("101"), Currency: "USD"},
	}}
	writer := &memoryWriter{err: errors.New("connection lost")}
	up := newTestUpdater(source, writer)

	outcome, err := up.Run(context.Background(), []Holding{{ID: 9, AssetName: "Apple", Ticker: "AAPL", UnitPrice: d("100"), Amount: d("1"), Currency: "USD"}})
	require.NoError(t, err)

	assert.Zero(t, outcome.Updated)
	require.Len(t, outcome.Errors, 1)
}

func TestRunOneFailureDoesNotStopOthers(t *testing.T) {
	source := &fakeSource{
		configured: true,
		quotes: map[string]marketdata.Quote{
			"AAPL": {Symbol: "AAPL", Price: d("101"), Currency: "USD"},
			"MSFT": {Symbol: "MSFT", Price: d("415"), Currency: "USD"},
		},
		errors: map[string]error{
			"FAIL": errors.New("provider exploded"),
		},
	}
	writer := &memoryWriter{}
	up := newTestUpdater(source, writer)

	outcome, err := up.Run(context.Background(), []Holding{
		{ID: 1, AssetName: "Apple", Ticker: "AAPL", UnitPrice: d("100"), Amount: d("1"), Currency: "USD"},
		{ID: 2, AssetName: "Broken", Ticker: "FAIL", UnitPrice: d("10"), Amount: d("1"), Currency: "USD"},
		{ID: 3, AssetName: "Microsoft", Ticker: "MSFT", UnitPrice: d("410"), Amount: d("2"), Currency: "USD"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.Updated)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, int64(2), outcome.Errors[0].AssetID)
	assert.Len(t, writer.records, 2)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	source := &fakeSource{configured: true, quotes: map[string]marketdata.Quote{
		"AAPL": {Symbol: "AAPL", Price: d("101"), Currency: "USD"},
	}}
	up := newTestUpdater(source, &memoryWriter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := up.Run(ctx, []Holding{{ID: 1, Ticker: "AAPL", UnitPrice: d("100"), Amount: d("1")}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, outcome.Updated)
}

func TestRunCurrencyMismatchRejected(t *testing.T) {
	source := &fakeSource{configured: true, quotes: map[string]marketdata.Quote{
		"SWDA.MI": {Symbol: "SWDA.MI", Price: d("95"), Currency: "USD"},
	}}
	writer := &memoryWriter{}
	up := newTestUpdater(source, writer)

	outcome, err := up.Run(context.Background(), []Holding{{
		ID: 10, AssetName: "MSCI World", Ticker: "SWDA.MI",
		UnitPrice: d("100"), Amount: d("1"), Currency: "EUR",
	}})
	require.NoError(t, err)

	assert.Zero(t, outcome.Updated)
	assert.Empty(t, writer.records)
	require.Len(t, outcome.Alerts, 1)
	assert.Equal(t, validation.AnomalyCurrencyMismatch, outcome.Alerts[0].Anomaly)
}
