package app

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// CheckPrice runs a price pair through the anomaly validator and prints the
// verdict. Useful for inspecting what a refresh would do with a quote.
func (a *App) CheckPrice(oldPrice, newPrice decimal.Decimal, oldCurrency, newCurrency string) error {
	result := a.newValidator().Validate(oldPrice, newPrice, oldCurrency, newCurrency)

	fmt.Fprintf(os.Stdout, "valid: %t\n", result.IsValid)
	fmt.Fprintf(os.Stdout, "anomaly: %s\n", result.Anomaly)
	fmt.Fprintf(os.Stdout, "variation: %+.2f%%\n", result.VariationPct)
	fmt.Fprintf(os.Stdout, "confidence: %.2f\n", result.Confidence)
	if result.SplitRatio != nil {
		fmt.Fprintf(os.Stdout, "split ratio: %s\n", result.SplitRatio)
	}
	if result.Message != "" {
		fmt.Fprintf(os.Stdout, "message: %s\n", result.Message)
	}
	if result.SuggestedAction != "" {
		fmt.Fprintf(os.Stdout, "suggested action: %s\n", result.SuggestedAction)
	}
	return nil
}
