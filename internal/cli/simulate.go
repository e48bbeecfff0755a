package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/app"
)

var (
	simulateAsset     string
	simulateCondition string
	simulateTarget    uint64
	simulatePrice     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one evaluation cycle against a fixed price",
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := decimal.NewFromString(simulatePrice)
		if err != nil {
			return fmt.Errorf("invalid --price value: %w", err)
		}

		opts := app.SimulateOptions{
			Asset:     simulateAsset,
			Condition: simulateCondition,
			TargetUSD: simulateTarget,
			Price:     price,
		}
		return getApp().SimulateCycle(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAsset, "asset", "BTC", "Asset symbol (BTC, ETH, LINK)")
	simulateCmd.Flags().StringVar(&simulateCondition, "condition", "gt", "Condition (gt, lt, gte, lte)")
	simulateCmd.Flags().Uint64Var(&simulateTarget, "target", 0, "Target price in whole USD")
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "", "Simulated observed price in USD")

	_ = simulateCmd.MarkFlagRequired("target")
	_ = simulateCmd.MarkFlagRequired("price")
}
