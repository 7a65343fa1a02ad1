package cli

import (
	"github.com/spf13/cobra"

	"portfolio-price-sync/internal/app"
)

var (
	showLimit  int
	showAlerts bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current holdings and recent price alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{
			Limit:  showLimit,
			Alerts: showAlerts,
		})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Maximum number of alerts to display")
	showCmd.Flags().BoolVar(&showAlerts, "alerts", false, "Also display recent price alerts")
}
