package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradecore",
	Short: "Order lifecycle, risk guardrail, and ledger reconciliation worker",
	Long: `Tradecore is the order-lifecycle core of an automated trading stack.

It provides:
  - An intent-consuming execution worker with layered risk guardrails
  - Order registry with automatic cancel and replace loops
  - Liquidity-aware order sizing
  - Intraday matched-lot P&L tracking and a daily fill ledger
  - Dual-ledger end-of-day reconciliation against the overnight baseline`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
