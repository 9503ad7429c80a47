package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/x402-labs/inference-gateway/internal/catalog"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the model catalog",
	Long:  "List all models the gateway sells, with their providers and per-request USD prices",
	Run: func(cmd *cobra.Command, args []string) {
		cat, err := catalog.Load(config.GetConfigWithDefault("models_file", ""))
		if err != nil {
			fmt.Printf("Failed to load model catalog: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%-32s %-12s %10s\n", "MODEL", "PROVIDER", "PRICE USD")
		for _, model := range cat.List() {
			fmt.Printf("%-32s %-12s %10.4f\n", model.ID, model.Provider, model.PriceUSD)
		}
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
