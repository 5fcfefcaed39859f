package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/SashOkT/ElectricityPricingProject/internal/app"
)

var (
	simulateHour  string
	simulatePrice float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic price reading through the configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateHour == "" {
			return errors.New("--hour must be provided")
		}
		opts := app.SimulateOptions{Hour: simulateHour, Price: simulatePrice}
		return getApp().SimulateAlert(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateHour, "hour", "", "Hour-ending label, e.g. \"2:00 PM\"")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Price in cents/kWh")
}
