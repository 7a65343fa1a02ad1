package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints the current holdings and, optionally, recent price alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show holdings")
	}
	if closeStore != nil {
		defer closeStore()
	}

	holdings, err := store.ListCurrentHoldings(ctx)
	if err != nil {
		return err
	}
	if len(holdings) == 0 {
		fmt.Fprintln(os.Stdout, "no holdings found")
	} else {
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Asset\tTicker\tISIN\tAmount\tUnit price\tTotal\tCurrency\tRecorded\tNote")
		for _, rec := range holdings {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				rec.AssetName,
				rec.Ticker,
				rec.ISIN,
				formatDecimal(rec.Amount, 4),
				formatDecimal(rec.UnitPrice, 2),
				formatDecimal(rec.TotalValue, 2),
				rec.Currency,
				rec.RecordedAt.UTC().Format("2006-01-02"),
				sanitizeInline(rec.Note),
			)
		}
		writer.Flush()
	}

	if !opts.Alerts {
		return nil
	}

	alerts, err := store.ListRecentPriceAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	fmt.Fprintln(os.Stdout)
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tAsset\tType\tAnomaly\tVariation%\tSplit\tMessage")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.AssetName,
			alert.AlertType,
			alert.Anomaly,
			formatDecimal(alert.VariationPct, 2),
			alert.SplitRatio,
			sanitizeInline(alert.Message),
		)
	}
	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
