package payment

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/x402-labs/inference-gateway/internal/database"
	"github.com/x402-labs/inference-gateway/internal/utils"
)

// Coordinator executes compensating transfers when the provider call fails
// after a payment already settled. One best-effort attempt per failure:
// silent repeated fund movement is a correctness risk, so failures are
// reported and journaled instead of retried.
type Coordinator struct {
	client  LedgerClient
	wallet  *SettlementWallet
	logger  *utils.LogsManager
	journal *database.RefundJournal

	feeReserve uint64
}

// NewCoordinator creates a refund coordinator. wallet may be nil (refunds
// disabled); journal may be nil (no reconciliation persistence).
func NewCoordinator(config *utils.ConfigManager, logger *utils.LogsManager, client LedgerClient, wallet *SettlementWallet, journal *database.RefundJournal) *Coordinator {
	return &Coordinator{
		client:     client,
		wallet:     wallet,
		logger:     logger,
		journal:    journal,
		feeReserve: uint64(config.GetConfigInt64("refund_fee_reserve_lamports", 10000, 0, LamportsPerSOL)),
	}
}

// Refund returns the original payment to the payer. The amount is re-derived
// from the original transaction's balance delta, never taken from the client;
// payerHint is honored only when it matches an account that actually lost
// balance in that transaction.
func (c *Coordinator) Refund(ctx context.Context, originalTx string, recipient string, payerHint string, reference string) *RefundOutcome {
	if c.wallet == nil {
		c.logger.Warn(fmt.Sprintf("Refund requested for %s but no settlement key is configured", originalTx), "refund")
		return c.report(originalTx, reference, &RefundOutcome{
			Status: RefundNotConfigured,
			Err:    ErrRefundNotConfigured,
		})
	}

	sig, err := solana.SignatureFromBase58(originalTx)
	if err != nil {
		return c.report(originalTx, reference, &RefundOutcome{
			Status: RefundError,
			Err:    fmt.Errorf("malformed original transaction signature: %v", err),
		})
	}

	recipientKey, err := solana.PublicKeyFromBase58(recipient)
	if err != nil {
		return c.report(originalTx, reference, &RefundOutcome{
			Status: RefundError,
			Err:    fmt.Errorf("invalid recipient address: %v", err),
		})
	}

	amount, payer, err := c.rederivePayment(ctx, sig, recipientKey, payerHint)
	if err != nil {
		return c.report(originalTx, reference, &RefundOutcome{
			Status: RefundError,
			Err:    err,
		})
	}

	outcome := &RefundOutcome{Amount: amount, Payer: payer.String()}

	balance, err := c.client.GetBalance(ctx, c.wallet.PublicKey(), rpc.CommitmentConfirmed)
	if err != nil {
		outcome.Status = RefundError
		outcome.Err = fmt.Errorf("failed to check settlement balance: %v", err)
		return c.report(originalTx, reference, outcome)
	}

	required := new(big.Int).Add(amount, new(big.Int).SetUint64(c.feeReserve))
	if new(big.Int).SetUint64(balance.Value).Cmp(required) < 0 {
		outcome.Status = RefundFailed
		outcome.Err = fmt.Errorf("%w: have %d lamports, need %s (refund + fee reserve)",
			ErrRefundInsufficientFunds, balance.Value, required.String())
		return c.report(originalTx, reference, outcome)
	}

	refundSig, err := c.submitTransfer(ctx, payer, amount.Uint64())
	if err != nil {
		outcome.Status = RefundError
		outcome.Err = err
		return c.report(originalTx, reference, outcome)
	}

	outcome.Status = RefundCompleted
	outcome.Signature = refundSig.String()
	c.logger.Info(fmt.Sprintf("Refunded %s lamports to %s: tx=%s (original %s)",
		amount.String(), payer, refundSig, originalTx), "refund")
	return c.report(originalTx, reference, outcome)
}

// rederivePayment reads the original transaction and returns the amount the
// recipient actually received and the account to refund
func (c *Coordinator) rederivePayment(ctx context.Context, sig solana.Signature, recipient solana.PublicKey, payerHint string) (*big.Int, solana.PublicKey, error) {
	maxVersion := uint64(0)
	tx, err := c.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil || tx == nil {
		return nil, solana.PublicKey{}, fmt.Errorf("failed to re-read original transaction %s: %v", sig, err)
	}

	accounts, err := resolveAccounts(tx)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}

	idx := accounts.indexOf(recipient)
	if idx < 0 {
		return nil, solana.PublicKey{}, fmt.Errorf("%w in original transaction", ErrRecipientNotFound)
	}

	amount := accounts.delta(idx)
	if amount.Sign() <= 0 {
		return nil, solana.PublicKey{}, fmt.Errorf("%w: original transaction paid %s lamports", ErrNoPaymentReceived, amount.String())
	}

	payer, rule, err := c.identifyPayer(accounts, recipient, payerHint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	c.logger.Info(fmt.Sprintf("Refund payer %s selected via %s for %s", payer, rule, sig), "refund")

	return amount, payer, nil
}

// identifyPayer picks the refund destination. Preference order: the client's
// explicit payer (when it actually lost balance), a signer with a balance
// decrease, then any non-recipient account with a decrease. The last rule is
// a heuristic; the applied rule is logged so reconciliation can audit it.
func (c *Coordinator) identifyPayer(accounts *txAccounts, recipient solana.PublicKey, payerHint string) (solana.PublicKey, string, error) {
	if payerHint != "" {
		if hinted, err := solana.PublicKeyFromBase58(payerHint); err == nil {
			if idx := accounts.indexOf(hinted); idx >= 0 && accounts.delta(idx).Sign() < 0 {
				return hinted, "client-supplied payer", nil
			}
			c.logger.Warn(fmt.Sprintf("Client-supplied payer %s had no balance decrease, falling back to signers", payerHint), "refund")
		}
	}

	for i, key := range accounts.keys {
		if accounts.isSigner(i) && !key.Equals(recipient) && accounts.delta(i).Sign() < 0 {
			return key, "signer with balance decrease", nil
		}
	}

	for i, key := range accounts.keys {
		if !key.Equals(recipient) && accounts.delta(i).Sign() < 0 {
			return key, "non-signer balance decrease heuristic", nil
		}
	}

	return solana.PublicKey{}, "", ErrRefundPayerNotFound
}

// submitTransfer builds, signs and broadcasts the compensating transfer
func (c *Coordinator) submitTransfer(ctx context.Context, payer solana.PublicKey, lamports uint64) (solana.Signature, error) {
	recent, err := c.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: failed to get blockhash: %v", ErrRefundBroadcast, err)
	}

	transfer := system.NewTransferInstruction(lamports, c.wallet.PublicKey(), payer).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{transfer},
		recent.Value.Blockhash,
		solana.TransactionPayer(c.wallet.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: failed to build transaction: %v", ErrRefundSigning, err)
	}

	if err := c.wallet.Sign(tx); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrRefundSigning, err)
	}

	sig, err := c.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrRefundBroadcast, err)
	}

	return sig, nil
}

// report journals the outcome and returns it. Completed refunds are recorded
// for audit; anything else lands in the reconciliation queue so money in an
// unresolved state is never silently dropped.
func (c *Coordinator) report(originalTx string, reference string, outcome *RefundOutcome) *RefundOutcome {
	if c.journal == nil {
		return outcome
	}

	amount := ""
	if outcome.Amount != nil {
		amount = outcome.Amount.String()
	}
	reason := ""
	if outcome.Err != nil {
		reason = outcome.Err.Error()
	}

	entry := database.RefundEntry{
		Reference:      reference,
		OriginalTx:     originalTx,
		RefundTx:       outcome.Signature,
		Payer:          outcome.Payer,
		AmountLamports: amount,
		Status:         string(outcome.Status),
		Reason:         reason,
	}

	if err := c.journal.Record(entry); err != nil {
		c.logger.Error(fmt.Sprintf("Failed to journal refund outcome for %s: %v", originalTx, err), "refund")
	}

	return outcome
}
