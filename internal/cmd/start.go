package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	"github.com/x402-labs/inference-gateway/internal/api"
	"github.com/x402-labs/inference-gateway/internal/catalog"
	"github.com/x402-labs/inference-gateway/internal/database"
	"github.com/x402-labs/inference-gateway/internal/gateway"
	"github.com/x402-labs/inference-gateway/internal/payment"
	"github.com/x402-labs/inference-gateway/internal/price"
	"github.com/x402-labs/inference-gateway/internal/providers"
	"github.com/x402-labs/inference-gateway/internal/utils"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the inference gateway",
	Long: `Start the inference gateway HTTP server.

This will:
- Load the model catalog
- Connect to the configured Solana RPC endpoint
- Open the refund journal database
- Serve the payment-gated completion API`,
	Run: func(cmd *cobra.Command, args []string) {
		logger.Info("Starting x402 inference gateway...", "cli")

		pidManager, err := utils.NewPIDManager(config)
		if err != nil {
			logger.Error(fmt.Sprintf("Failed to create PID manager: %v", err), "cli")
			os.Exit(1)
		}

		// Check if another instance is already running
		if existingPID, err := pidManager.ReadPID(); err == nil {
			if pidManager.IsProcessRunning(existingPID) {
				logger.Error(fmt.Sprintf("Another instance is already running with PID: %d", existingPID), "cli")
				fmt.Printf("Another instance is already running with PID: %d\n", existingPID)
				fmt.Println("Use 'x402-gateway stop' to stop the existing instance first")
				os.Exit(1)
			} else {
				pidManager.RemovePIDFile()
			}
		}

		currentPID := os.Getpid()
		if err := pidManager.WritePID(currentPID); err != nil {
			logger.Error(fmt.Sprintf("Failed to write PID file: %v", err), "cli")
			os.Exit(1)
		}
		defer func() {
			if err := pidManager.RemovePIDFile(); err != nil {
				logger.Warn(fmt.Sprintf("Failed to remove PID file: %v", err), "cli")
			}
		}()

		logger.Info(fmt.Sprintf("Gateway started with PID: %d", currentPID), "cli")

		cat, err := catalog.Load(config.GetConfigWithDefault("models_file", ""))
		if err != nil {
			logger.Error(fmt.Sprintf("Failed to load model catalog: %v", err), "cli")
			os.Exit(1)
		}
		logger.Info(fmt.Sprintf("Loaded %d models", len(cat.List())), "cli")

		dbManager, err := database.NewSQLiteManager(config, logger)
		if err != nil {
			logger.Error(fmt.Sprintf("Failed to open database: %v", err), "cli")
			os.Exit(1)
		}
		defer dbManager.Close()

		cluster := config.GetConfigWithDefault("solana_cluster", "devnet")
		endpoint := config.GetConfigWithDefault("solana_rpc_endpoint", "")
		if endpoint == "" {
			endpoint = payment.RPCEndpointForCluster(cluster)
		}
		rpcClient := rpc.New(endpoint)
		logger.Info(fmt.Sprintf("Using Solana RPC %s (cluster %s)", endpoint, cluster), "cli")

		var pyth *price.PythFeed
		if account := config.GetConfigWithDefault("pyth_sol_usd_account", ""); account != "" {
			pyth, err = price.NewPythFeed(rpcClient, account)
			if err != nil {
				logger.Warn(fmt.Sprintf("On-chain price feed disabled: %v", err), "cli")
			}
		}
		oracle := price.NewOracle(config, logger, pyth)

		receipts, err := payment.NewReceiptReader(config, logger, rpcClient)
		if err != nil {
			logger.Warn(fmt.Sprintf("Receipt reader disabled: %v", err), "cli")
		}

		wallet, err := payment.LoadSettlementWallet(config)
		if err != nil {
			logger.Error(fmt.Sprintf("Invalid settlement key: %v", err), "cli")
			os.Exit(1)
		}
		if wallet == nil {
			logger.Warn("No settlement key configured: refunds are disabled", "cli")
		} else {
			logger.Info(fmt.Sprintf("Settlement wallet: %s", wallet.PublicKey()), "cli")
		}

		requirements := payment.NewRequirementsBuilder(config, logger, oracle)
		verifier := payment.NewVerifier(config, logger, rpcClient, receipts)
		refunds := payment.NewCoordinator(config, logger, rpcClient, wallet, dbManager.Refunds)
		router := providers.NewRouter(config, logger)

		orchestrator := gateway.NewOrchestrator(logger, cat, requirements, verifier, refunds, router)

		apiServer := api.NewAPIServer(config, logger, orchestrator, cat)
		if err := apiServer.Start(); err != nil {
			logger.Error(fmt.Sprintf("Failed to start API server: %v", err), "cli")
			os.Exit(1)
		}

		fmt.Printf("x402 gateway is running on port %s. Press Ctrl+C to stop.\n", apiServer.GetPort())

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutdown signal received, stopping gateway...", "cli")
		if err := apiServer.Stop(); err != nil {
			logger.Error(fmt.Sprintf("Error stopping API server: %v", err), "cli")
		}
		logger.Info("x402 gateway stopped successfully", "cli")
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
