package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	checkOldCurrency string
	checkNewCurrency string
)

var checkPriceCmd = &cobra.Command{
	Use:   "check-price <old> <new>",
	Short: "Run a price pair through the anomaly validator",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldPrice, err := decimal.NewFromString(args[0])
		if err != nil {
			return fmt.Errorf("invalid old price: %w", err)
		}
		newPrice, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid new price: %w", err)
		}

		return getApp().CheckPrice(oldPrice, newPrice, checkOldCurrency, checkNewCurrency)
	},
}

func init() {
	checkPriceCmd.Flags().StringVar(&checkOldCurrency, "old-currency", "", "Currency of the stored price")
	checkPriceCmd.Flags().StringVar(&checkNewCurrency, "new-currency", "", "Currency reported by the provider")
}
