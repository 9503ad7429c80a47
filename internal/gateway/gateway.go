// Package gateway orchestrates the pay-per-request flow: challenge, verify,
// complete, refund. It owns the decision logic; HTTP concerns stay in the api
// package.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/x402-labs/inference-gateway/internal/catalog"
	"github.com/x402-labs/inference-gateway/internal/payment"
	"github.com/x402-labs/inference-gateway/internal/providers"
	"github.com/x402-labs/inference-gateway/internal/utils"
)

// Request is the inbound completion request body
type Request struct {
	Prompt  string `json:"prompt"`
	ModelID string `json:"modelId"`
}

// RequirementsWire is the JSON shape of payment requirements. Lamport amounts
// travel as decimal strings so clients never lose precision to float parsing.
type RequirementsWire struct {
	Recipient      string            `json:"recipient"`
	AmountLamports string            `json:"amountLamports"`
	Price          payment.PriceInfo `json:"price"`
	Reference      string            `json:"reference"`
}

// ChallengeResponse is the HTTP 402 body
type ChallengeResponse struct {
	PaymentRequirements RequirementsWire `json:"paymentRequirements"`
}

// SuccessResponse is the HTTP 200 body
type SuccessResponse struct {
	Output  string          `json:"output"`
	ModelID string          `json:"modelId"`
	Usage   providers.Usage `json:"usage"`
}

// ErrorResponse reports a failure and, when a payment was already taken, the
// fate of the client's money
type ErrorResponse struct {
	Error           string `json:"error"`
	Refunded        *bool  `json:"refunded,omitempty"`
	RefundStatus    string `json:"refundStatus,omitempty"`
	RefundSignature string `json:"refundSignature,omitempty"`
	RefundAmount    string `json:"refundAmount,omitempty"`
	TransactionID   string `json:"transactionId,omitempty"`
}

// Result is one fully-decided response, ready for the transport layer to
// serialize
type Result struct {
	Status int
	Body   interface{}
}

// CompletionRouter is the provider dispatch capability. Satisfied by
// *providers.Router; tests provide fakes.
type CompletionRouter interface {
	Complete(ctx context.Context, prompt string, model catalog.Model) (string, providers.Usage, error)
}

// Orchestrator runs the payment-gated completion flow
type Orchestrator struct {
	logger       *utils.LogsManager
	catalog      *catalog.Catalog
	requirements *payment.RequirementsBuilder
	verifier     *payment.Verifier
	refunds      *payment.Coordinator
	router       CompletionRouter
}

func NewOrchestrator(logger *utils.LogsManager, cat *catalog.Catalog, requirements *payment.RequirementsBuilder,
	verifier *payment.Verifier, refunds *payment.Coordinator, router CompletionRouter) *Orchestrator {
	return &Orchestrator{
		logger:       logger,
		catalog:      cat,
		requirements: requirements,
		verifier:     verifier,
		refunds:      refunds,
		router:       router,
	}
}

// Handle processes one completion request end to end. proof is nil when the
// request carried no payment header.
func (o *Orchestrator) Handle(ctx context.Context, req Request, proof *payment.Proof) Result {
	if req.Prompt == "" {
		return Result{http.StatusBadRequest, ErrorResponse{Error: "prompt is required"}}
	}

	model := o.catalog.Get(req.ModelID)

	reqs, err := o.requirements.Build(ctx, model)
	if err != nil {
		o.logger.Error(fmt.Sprintf("Cannot build payment requirements: %v", err), "gateway")
		return Result{http.StatusInternalServerError, ErrorResponse{Error: "payment recipient is not configured"}}
	}

	if proof == nil {
		return Result{http.StatusPaymentRequired, ChallengeResponse{
			PaymentRequirements: RequirementsWire{
				Recipient:      reqs.Recipient,
				AmountLamports: reqs.AmountLamports.String(),
				Price:          reqs.Price,
				Reference:      reqs.Reference,
			},
		}}
	}

	if proof.TxSignature == "" {
		return Result{http.StatusBadRequest, ErrorResponse{Error: "payment proof is missing txSignature"}}
	}

	verification, err := o.verifier.Verify(ctx, proof.TxSignature, proof.Reference, reqs.Recipient, reqs.AmountLamports)
	if err != nil {
		return o.verificationFailure(err)
	}

	output, usage, err := o.router.Complete(ctx, req.Prompt, model)
	if err != nil {
		return o.providerFailure(ctx, req, proof, reqs, err)
	}

	o.logger.Info(fmt.Sprintf("Served paid completion: model=%s payment=%s amount=%s lamports",
		model.ID, proof.TxSignature, verification.Amount.String()), "gateway")

	return Result{http.StatusOK, SuccessResponse{
		Output:  output,
		ModelID: model.ID,
		Usage:   usage,
	}}
}

// verificationFailure maps verification errors to client-facing responses.
// "Never seen on the ledger" and "landed but failed on-chain" are distinct
// situations for the payer, so they get distinct messages.
func (o *Orchestrator) verificationFailure(err error) Result {
	switch {
	case errors.Is(err, payment.ErrTransactionNotFound):
		return Result{http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("payment verification failed: %v", err),
		}}
	case errors.Is(err, payment.ErrTransactionFailed):
		return Result{http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("payment transaction failed on-chain: %v", err),
		}}
	case errors.Is(err, payment.ErrNoPaymentReceived),
		errors.Is(err, payment.ErrInsufficientPayment),
		errors.Is(err, payment.ErrRecipientNotFound):
		return Result{http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("payment verification failed: %v", err),
		}}
	default:
		o.logger.Error(fmt.Sprintf("Verification error: %v", err), "gateway")
		return Result{http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("payment verification failed: %v", err),
		}}
	}
}

// providerFailure handles the hard case: the payment already settled but no
// service was delivered. A refund is attempted exactly once and the outcome
// is always reported to the client.
func (o *Orchestrator) providerFailure(ctx context.Context, req Request, proof *payment.Proof, reqs *payment.Requirements, provErr error) Result {
	o.logger.Warn(fmt.Sprintf("Provider failed after settled payment %s: %v", proof.TxSignature, provErr), "gateway")

	outcome := o.refunds.Refund(ctx, proof.TxSignature, reqs.Recipient, proof.Payer, proof.Reference)

	message := "provider request failed"
	if errors.Is(provErr, providers.ErrProviderQuota) {
		message = "provider quota exceeded"
	} else if errors.Is(provErr, providers.ErrProviderUnconfigured) {
		message = "provider is not configured"
	}

	refunded := outcome.Refunded()
	resp := ErrorResponse{
		Error:        fmt.Sprintf("%s: %v", message, provErr),
		Refunded:     &refunded,
		RefundStatus: string(outcome.Status),
	}
	if refunded {
		resp.RefundSignature = outcome.Signature
		if outcome.Amount != nil {
			resp.RefundAmount = outcome.Amount.String()
		}
	} else {
		// The money stayed with us. Hand back the original transaction id
		// so the payer has something to reconcile against.
		resp.TransactionID = proof.TxSignature
		if outcome.Err != nil {
			resp.Error = fmt.Sprintf("%s; refund %s: %v", resp.Error, outcome.Status, outcome.Err)
		}
	}

	return Result{http.StatusInternalServerError, resp}
}
