package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/x402-labs/inference-gateway/internal/database"
)

var resolveID int64

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "List unresolved refund journal entries",
	Long: `List refund attempts that did not complete and still need manual attention.

Each entry records the original payment transaction, the payer, the amount
owed, and why the automatic refund did not go through. Use --resolve to mark
an entry as handled after refunding it by hand.`,
	Run: func(cmd *cobra.Command, args []string) {
		dbManager, err := database.NewSQLiteManager(config, logger)
		if err != nil {
			fmt.Printf("Failed to open database: %v\n", err)
			os.Exit(1)
		}
		defer dbManager.Close()

		if resolveID > 0 {
			if err := dbManager.Refunds.Resolve(resolveID); err != nil {
				fmt.Printf("Failed to resolve entry %d: %v\n", resolveID, err)
				os.Exit(1)
			}
			fmt.Printf("Entry %d marked as resolved\n", resolveID)
			return
		}

		entries, err := dbManager.Refunds.ListOpen()
		if err != nil {
			fmt.Printf("Failed to read refund journal: %v\n", err)
			os.Exit(1)
		}

		if len(entries) == 0 {
			fmt.Println("No unresolved refunds")
			return
		}

		fmt.Printf("%-5s %-20s %-14s %-16s %s\n", "ID", "CREATED", "STATUS", "AMOUNT", "ORIGINAL TX")
		for _, e := range entries {
			fmt.Printf("%-5d %-20s %-14s %-16s %s\n",
				e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Status, e.AmountLamports, e.OriginalTx)
			if e.Reason != "" {
				fmt.Printf("      reason: %s\n", e.Reason)
			}
		}
	},
}

func init() {
	reconcileCmd.Flags().Int64Var(&resolveID, "resolve", 0, "mark the given journal entry as resolved")
	rootCmd.AddCommand(reconcileCmd)
}
