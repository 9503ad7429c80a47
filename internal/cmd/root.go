package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/x402-labs/inference-gateway/internal/utils"
)

var (
	configPath string
	config     *utils.ConfigManager
	logger     *utils.LogsManager
)

var rootCmd = &cobra.Command{
	Use:   "x402-gateway",
	Short: "Pay-per-request AI inference gateway",
	Long: `An HTTP gateway that sells single LLM completions for on-chain SOL payments.

Unpaid requests receive an HTTP 402 challenge with exact payment requirements.
Paid requests are verified against the ledger's balance deltas before being
routed to the model's provider. When the provider fails after a payment has
settled, the gateway refunds the payer from its settlement wallet.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config = utils.NewConfigManager(configPath)
		logger = utils.NewLogsManager(config)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
}
