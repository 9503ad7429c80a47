package payment

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/x402-labs/inference-gateway/internal/catalog"
	"github.com/x402-labs/inference-gateway/internal/utils"
)

// LamportsPerSOL is the number of native units in one SOL
const LamportsPerSOL = 1_000_000_000

// PriceSource resolves the SOL/USD rate. Satisfied by *price.Oracle.
type PriceSource interface {
	GetSolPriceUSD(ctx context.Context) float64
}

// RequirementsBuilder computes 402 payment challenges. Issuance is stateless:
// nothing is written, replay handling relies on the reference and the actual
// on-chain verification.
type RequirementsBuilder struct {
	config *utils.ConfigManager
	logger *utils.LogsManager
	oracle PriceSource
}

func NewRequirementsBuilder(config *utils.ConfigManager, logger *utils.LogsManager, oracle PriceSource) *RequirementsBuilder {
	return &RequirementsBuilder{
		config: config,
		logger: logger,
		oracle: oracle,
	}
}

// Build computes the payment requirements for one request against the given
// model. Fails only when no settlement recipient is configured.
func (b *RequirementsBuilder) Build(ctx context.Context, model catalog.Model) (*Requirements, error) {
	recipient := b.config.GetConfigWithDefault("merchant_wallet", "")
	if recipient == "" {
		return nil, fmt.Errorf("%w: set merchant_wallet", ErrNoRecipientConfigured)
	}

	solPriceUSD := b.oracle.GetSolPriceUSD(ctx)
	priceSOL := model.PriceUSD / solPriceUSD
	lamports := big.NewInt(int64(math.Round(priceSOL * LamportsPerSOL)))

	reference := NewReference()

	b.logger.Debug(fmt.Sprintf("Issued payment requirements: model=%s amount=%s lamports (%.9f SOL @ %.2f USD/SOL) ref=%s",
		model.ID, lamports.String(), priceSOL, solPriceUSD, reference), "requirements")

	return &Requirements{
		Recipient:      recipient,
		AmountLamports: lamports,
		Price: PriceInfo{
			TokenSymbol:   "SOL",
			TokenDecimals: 9,
			AmountTokens:  strconv.FormatFloat(priceSOL, 'f', 9, 64),
			AmountUSD:     model.PriceUSD,
		},
		Reference: reference,
	}, nil
}

// NewReference generates a unique reference token. The receipt program uses
// the whole reference as a single PDA seed, so it must stay within the
// 32-byte seed cap: millisecond timestamp plus 64 random bits (13 + 1 + 16
// bytes) keeps it both unique and unguessable.
func NewReference() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + suffix
}
