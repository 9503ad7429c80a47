package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/x402-labs/inference-gateway/internal/gateway"
	"github.com/x402-labs/inference-gateway/internal/payment"
)

// PaymentHeader is the request header carrying the JSON-encoded payment proof
const PaymentHeader = "X-PAYMENT"

// handleAI serves POST /api/ai, the payment-gated completion endpoint
func (s *APIServer) handleAI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req gateway.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, gateway.ErrorResponse{
			Error: fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}

	proof, err := parsePaymentHeader(r.Header.Get(PaymentHeader))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, gateway.ErrorResponse{
			Error: fmt.Sprintf("invalid %s header: %v", PaymentHeader, err),
		})
		return
	}

	result := s.orchestrator.Handle(r.Context(), req, proof)
	s.writeJSON(w, result.Status, result.Body)
}

// handleModels serves GET /api/models, the public model catalog
func (s *APIServer) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"models": s.catalog.List(),
	})
}

// parsePaymentHeader decodes the payment proof header. An absent header means
// "no payment yet" and returns nil without error.
func parsePaymentHeader(raw string) (*payment.Proof, error) {
	if raw == "" {
		return nil, nil
	}

	var proof payment.Proof
	if err := json.Unmarshal([]byte(raw), &proof); err != nil {
		return nil, fmt.Errorf("expected JSON object: %v", err)
	}
	return &proof, nil
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(fmt.Sprintf("Failed to encode response: %v", err), "api")
	}
}
