package cli

import (
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/app"
)

var (
	submitAsset     string
	submitCondition string
	submitTarget    uint64
	submitCreatedAt int64
	submitSender    string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Encode a rule report and submit it to the ingest endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SubmitOptions{
			Asset:     submitAsset,
			Condition: submitCondition,
			TargetUSD: submitTarget,
			CreatedAt: submitCreatedAt,
			Sender:    submitSender,
		}
		return getApp().SubmitReport(cmd.Context(), opts)
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitAsset, "asset", "", "Asset symbol (BTC, ETH, LINK)")
	submitCmd.Flags().StringVar(&submitCondition, "condition", "", "Condition (gt, lt, gte, lte)")
	submitCmd.Flags().Uint64Var(&submitTarget, "target", 0, "Target price in whole USD")
	submitCmd.Flags().Int64Var(&submitCreatedAt, "created-at", 0, "Creation timestamp (unix seconds; defaults to now)")
	submitCmd.Flags().StringVar(&submitSender, "sender", "", "Submitting principal address (0x...)")

	_ = submitCmd.MarkFlagRequired("asset")
	_ = submitCmd.MarkFlagRequired("condition")
	_ = submitCmd.MarkFlagRequired("target")
	_ = submitCmd.MarkFlagRequired("sender")
}
