package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	"github.com/x402-labs/inference-gateway/internal/payment"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Show the settlement wallet address and balance",
	Long:  "Show the refund settlement wallet's public address and its current on-chain balance",
	Run: func(cmd *cobra.Command, args []string) {
		wallet, err := payment.LoadSettlementWallet(config)
		if err != nil {
			fmt.Printf("Invalid settlement key: %v\n", err)
			os.Exit(1)
		}
		if wallet == nil {
			fmt.Println("No settlement key configured (set settlement_private_key); refunds are disabled")
			return
		}

		fmt.Printf("Settlement address: %s\n", wallet.PublicKey())

		cluster := config.GetConfigWithDefault("solana_cluster", "devnet")
		endpoint := config.GetConfigWithDefault("solana_rpc_endpoint", "")
		if endpoint == "" {
			endpoint = payment.RPCEndpointForCluster(cluster)
		}
		rpcClient := rpc.New(endpoint)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		balance, err := rpcClient.GetBalance(ctx, wallet.PublicKey(), rpc.CommitmentConfirmed)
		if err != nil {
			fmt.Printf("Failed to fetch balance: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Balance: %d lamports (%.9f SOL) on %s\n",
			balance.Value, float64(balance.Value)/payment.LamportsPerSOL, cluster)
	},
}

func init() {
	rootCmd.AddCommand(walletCmd)
}
