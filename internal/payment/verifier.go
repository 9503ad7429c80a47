package payment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/x402-labs/inference-gateway/internal/utils"
)

// lookupOutcome drives the retry ladder as plain state instead of exception
// control flow, so the bounded-retry contract stays testable.
type lookupOutcome int

const (
	lookupFound lookupOutcome = iota
	lookupNotFound
	lookupErrored
)

type lookupResult struct {
	outcome lookupOutcome
	tx      *rpc.GetTransactionResult
	err     error
}

// Verifier confirms that a client-referenced transaction actually paid the
// expected recipient. Truth is derived entirely from ledger balance deltas;
// the only client input trusted is which transaction to look at.
type Verifier struct {
	client   LedgerClient
	logger   *utils.LogsManager
	receipts *ReceiptReader

	confirmTimeout   time.Duration
	pollInterval     time.Duration
	maxRetries       int
	retryBackoff     time.Duration
	tolerancePercent int64
}

// NewVerifier creates a verifier. receipts may be nil when no receipt program
// is configured.
func NewVerifier(config *utils.ConfigManager, logger *utils.LogsManager, client LedgerClient, receipts *ReceiptReader) *Verifier {
	return &Verifier{
		client:           client,
		logger:           logger,
		receipts:         receipts,
		confirmTimeout:   config.GetConfigDuration("verify_confirm_timeout", 30*time.Second),
		pollInterval:     config.GetConfigDuration("verify_confirm_poll_interval", 2*time.Second),
		maxRetries:       config.GetConfigInt("verify_max_retries", 10, 1, 100),
		retryBackoff:     config.GetConfigDuration("verify_retry_backoff", 500*time.Millisecond),
		tolerancePercent: int64(config.GetConfigInt("verify_tolerance_percent", 95, 1, 100)),
	}
}

// Verify checks a payment proof against the ledger:
//
//  1. fetch the transaction, waiting for confirmation and retrying with
//     backoff within a bounded budget
//  2. reject transactions that executed but failed on-chain
//  3. locate the recipient among the touched accounts and require a positive
//     balance delta
//  4. require the delta to be within the under-payment tolerance of minAmount
//  5. optionally look up the on-chain receipt record (non-fatal)
func (v *Verifier) Verify(ctx context.Context, txSignature string, reference string, expectedRecipient string, minAmount *big.Int) (*VerificationResult, error) {
	sig, err := solana.SignatureFromBase58(txSignature)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed transaction signature %q: %v", ErrTransactionNotFound, txSignature, err)
	}

	recipient, err := solana.PublicKeyFromBase58(expectedRecipient)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %v", expectedRecipient, err)
	}

	tx, err := v.lookupWithRetry(ctx, sig)
	if err != nil {
		return nil, err
	}

	if tx.Meta != nil && tx.Meta.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailed, tx.Meta.Err)
	}

	accounts, err := resolveAccounts(tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	idx := accounts.indexOf(recipient)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s is not among the %d accounts touched by %s",
			ErrRecipientNotFound, expectedRecipient, len(accounts.keys), sig)
	}

	delta := accounts.delta(idx)
	if delta.Sign() <= 0 {
		return nil, fmt.Errorf("%w: recipient balance delta is %s lamports in %s",
			ErrNoPaymentReceived, delta.String(), sig)
	}

	// Tolerance band absorbs price-oracle drift between quote time and
	// payment time: accept delta when delta*100 >= minAmount*tolerance
	scaledDelta := new(big.Int).Mul(delta, big.NewInt(100))
	threshold := new(big.Int).Mul(minAmount, big.NewInt(v.tolerancePercent))
	if scaledDelta.Cmp(threshold) < 0 {
		return nil, fmt.Errorf("%w: received %s lamports, expected at least %d%% of %s",
			ErrInsufficientPayment, delta.String(), v.tolerancePercent, minAmount.String())
	}

	result := &VerificationResult{
		Amount:    delta,
		Slot:      tx.Slot,
		Signature: sig,
	}

	// Receipt recording is an auditability nicety, not a payment-correctness
	// requirement; absence is logged and ignored
	if v.receipts != nil && reference != "" {
		receipt, err := v.receipts.FindReceipt(ctx, reference)
		if err != nil {
			v.logger.Warn(fmt.Sprintf("No receipt record for reference %s: %v", reference, err), "verifier")
		} else {
			result.Receipt = receipt
		}
	}

	v.logger.Info(fmt.Sprintf("Payment verified: tx=%s amount=%s lamports slot=%d", sig, delta.String(), tx.Slot), "verifier")
	return result, nil
}

// lookupWithRetry fetches the transaction with the bounded retry ladder:
// immediate lookup, confirmation wait on first miss, then backoff scaled per
// attempt, with the final attempt escalated to finalized commitment.
func (v *Verifier) lookupWithRetry(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	waitedForConfirmation := false
	sawStatus := false
	var lastErr error

	for attempt := 1; attempt <= v.maxRetries; attempt++ {
		commitment := rpc.CommitmentConfirmed
		if attempt == v.maxRetries {
			// Last resort: a stricter commitment level can surface
			// transactions the confirmed view has not indexed yet
			commitment = rpc.CommitmentFinalized
		}

		res := v.lookupOnce(ctx, sig, commitment)
		switch res.outcome {
		case lookupFound:
			return res.tx, nil
		case lookupErrored:
			lastErr = res.err
			v.logger.Warn(fmt.Sprintf("Transaction lookup attempt %d/%d errored: %v", attempt, v.maxRetries, res.err), "verifier")
		case lookupNotFound:
			// After the first miss, give the ledger one bounded window to
			// confirm the signature before burning through retries
			if !waitedForConfirmation {
				waitedForConfirmation = true
				sawStatus = v.awaitConfirmation(ctx, sig)
				continue
			}
		}

		if attempt < v.maxRetries {
			backoff := v.retryBackoff * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: lookup canceled: %v", ErrTransactionNotFound, ctx.Err())
			case <-time.After(backoff):
			}
		}
	}

	// Make the dominant real-world failure actionable: distinguish a
	// transaction the ledger has seen but not confirmed from one it never
	// received (typically sent on the wrong network)
	if sawStatus {
		return nil, fmt.Errorf("%w: %s is known to the ledger but did not confirm within %s; retry once it finalizes",
			ErrTransactionNotFound, sig, v.confirmTimeout)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %s not retrievable after %d attempts, last error: %v",
			ErrTransactionNotFound, sig, v.maxRetries, lastErr)
	}
	return nil, fmt.Errorf("%w: %s was never seen by the ledger after %d attempts; check that the payment was sent on the expected network",
		ErrTransactionNotFound, sig, v.maxRetries)
}

func (v *Verifier) lookupOnce(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) lookupResult {
	maxVersion := uint64(0)
	tx, err := v.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return lookupResult{outcome: lookupNotFound}
		}
		return lookupResult{outcome: lookupErrored, err: err}
	}
	if tx == nil {
		return lookupResult{outcome: lookupNotFound}
	}
	return lookupResult{outcome: lookupFound, tx: tx}
}

// awaitConfirmation polls signature statuses until the transaction reaches
// confirmed/finalized or the bounded window expires. Returns whether the
// ledger reported any status for the signature at all.
func (v *Verifier) awaitConfirmation(ctx context.Context, sig solana.Signature) bool {
	deadline := time.Now().Add(v.confirmTimeout)
	sawStatus := false

	for time.Now().Before(deadline) {
		statuses, err := v.client.GetSignatureStatuses(ctx, true, sig)
		if err == nil && statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
			sawStatus = true
			status := statuses.Value[0]
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return true
			}
		}

		select {
		case <-ctx.Done():
			return sawStatus
		case <-time.After(v.pollInterval):
		}
	}

	return sawStatus
}
