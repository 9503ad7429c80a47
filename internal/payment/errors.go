package payment

import "errors"

var (
	// Configuration errors
	ErrNoRecipientConfigured = errors.New("no settlement recipient configured")

	// Verification errors
	ErrTransactionNotFound = errors.New("transaction not found on ledger")
	ErrTransactionFailed   = errors.New("transaction failed on-chain")
	ErrRecipientNotFound   = errors.New("recipient account not touched by transaction")
	ErrNoPaymentReceived   = errors.New("no payment received by recipient")
	ErrInsufficientPayment = errors.New("insufficient payment amount")

	// Receipt errors
	ErrReceiptNotFound = errors.New("receipt record not found on-chain")

	// Refund errors
	ErrRefundNotConfigured     = errors.New("refunds not configured")
	ErrRefundPayerNotFound     = errors.New("could not identify payer for refund")
	ErrRefundInsufficientFunds = errors.New("insufficient settlement balance for refund")
	ErrRefundSigning           = errors.New("failed to sign refund transaction")
	ErrRefundBroadcast         = errors.New("failed to broadcast refund transaction")
)
