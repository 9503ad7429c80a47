package payment

import (
	"context"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// LedgerClient is the subset of the Solana RPC surface the payment core
// depends on. *rpc.Client satisfies it; tests provide mocks.
type LedgerClient interface {
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// PriceInfo is the human-readable price snapshot attached to a 402 challenge
type PriceInfo struct {
	TokenSymbol   string  `json:"tokenSymbol"`
	TokenDecimals int     `json:"tokenDecimals"`
	AmountTokens  string  `json:"amountTokens"`
	AmountUSD     float64 `json:"amountUsd"`
}

// Requirements is the value object issued with an HTTP 402 response. It is
// never persisted server-side: correctness comes from verifying the actual
// on-chain transaction, not from matching a stored pending-payment record.
type Requirements struct {
	Recipient      string    `json:"recipient"`
	AmountLamports *big.Int  `json:"-"`
	Price          PriceInfo `json:"price"`
	Reference      string    `json:"reference"`
}

// Proof is the client-supplied payment proof from the X-PAYMENT header.
// Untrusted input: the only thing ever taken at face value is which
// transaction to look at.
type Proof struct {
	TxSignature string `json:"txSignature"`
	Reference   string `json:"reference"`
	// Optional: lets the client pin the refund destination instead of
	// relying on payer re-derivation
	Payer string `json:"payer,omitempty"`
}

// VerificationResult carries the confirmed balance delta to the recipient
type VerificationResult struct {
	Amount    *big.Int
	Slot      uint64
	Signature solana.Signature
	// Receipt is set when the optional on-chain receipt record was found
	Receipt *Receipt
}

// RefundStatus enumerates every reportable refund outcome. The caller must
// always be able to tell the user what happened to their money.
type RefundStatus string

const (
	RefundCompleted     RefundStatus = "completed"
	RefundFailed        RefundStatus = "failed"
	RefundNotConfigured RefundStatus = "not_configured"
	RefundNotAttempted  RefundStatus = "not_attempted"
	RefundPending       RefundStatus = "pending"
	RefundError         RefundStatus = "error"
)

// RefundOutcome reports a single refund attempt
type RefundOutcome struct {
	Status    RefundStatus
	Signature string
	Amount    *big.Int
	Payer     string
	Err       error
}

// Refunded reports whether funds were actually returned
func (o *RefundOutcome) Refunded() bool {
	return o != nil && o.Status == RefundCompleted
}
