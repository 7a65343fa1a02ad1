package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"portfolio-price-sync/internal/storage"
)

// Export renders one asset's price history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.AssetID <= 0 {
		return errors.New("--asset is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListAssetHistory(ctx, opts.AssetID, opts.MaxPoints)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Int64("asset_id", opts.AssetID).Msg("no history found for export")
		return nil
	}

	// History comes back newest first; charts and CSVs read oldest first.
	reverseRecords(records)
	a.Logger.Info().Int("exported", len(records)).Int64("asset_id", opts.AssetID).Msg("exporting asset history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, records); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, records); err != nil {
			return err
		}
	}

	return nil
}

func reverseRecords(records []storage.AssetRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}

func writeHistoryCSV(path string, records []storage.AssetRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"recorded_at", "asset_name", "ticker", "isin", "amount", "unit_price", "total_value", "currency", "note"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.RecordedAt.Format(time.RFC3339),
			rec.AssetName,
			rec.Ticker,
			rec.ISIN,
			rec.Amount.String(),
			rec.UnitPrice.String(),
			rec.TotalValue.String(),
			rec.Currency,
			rec.Note,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeHistoryPNG(path string, records []storage.AssetRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	prices := make([]float64, len(records))
	totals := make([]float64, len(records))
	for i, rec := range records {
		x[i] = rec.RecordedAt
		prices[i] = rec.UnitPrice.InexactFloat64()
		totals[i] = rec.TotalValue.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  records[0].AssetName,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Unit price (" + records[0].Currency + ")",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Total value",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Unit price",
				XValues: x,
				YValues: prices,
			},
			chart.TimeSeries{
				Name:    "Total value",
				XValues: x,
				YValues: totals,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
