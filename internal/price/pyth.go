package price

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Pyth v2 price account layout offsets. The account is a packed C struct;
// only the exponent and the aggregate price/status are needed here.
const (
	pythMagic         = 0xa1b2c3d4
	pythOffMagic      = 0
	pythOffVersion    = 4
	pythOffExponent   = 20
	pythOffAggPrice   = 208
	pythOffAggStatus  = 224
	pythMinAccountLen = 240

	// Aggregate status values
	pythStatusTrading = 1
)

// AccountFetcher is the single RPC capability the feed needs
type AccountFetcher interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// PythFeed reads the SOL/USD price from a Pyth price account on-chain
type PythFeed struct {
	client  AccountFetcher
	account solana.PublicKey
}

// NewPythFeed creates a feed for the given price account (base58)
func NewPythFeed(client AccountFetcher, priceAccount string) (*PythFeed, error) {
	account, err := solana.PublicKeyFromBase58(priceAccount)
	if err != nil {
		return nil, fmt.Errorf("invalid pyth price account: %v", err)
	}

	return &PythFeed{client: client, account: account}, nil
}

// SolPriceUSD fetches and decodes the aggregate price
func (f *PythFeed) SolPriceUSD(ctx context.Context) (float64, error) {
	info, err := f.client.GetAccountInfo(ctx, f.account)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pyth account: %v", err)
	}
	if info == nil || info.Value == nil {
		return 0, fmt.Errorf("pyth price account not found")
	}

	data := info.Value.Data.GetBinary()
	if len(data) < pythMinAccountLen {
		return 0, fmt.Errorf("pyth account data too short: %d bytes", len(data))
	}

	if binary.LittleEndian.Uint32(data[pythOffMagic:]) != pythMagic {
		return 0, fmt.Errorf("not a pyth account (bad magic)")
	}

	status := binary.LittleEndian.Uint32(data[pythOffAggStatus:])
	if status != pythStatusTrading {
		return 0, fmt.Errorf("pyth aggregate price not trading (status %d)", status)
	}

	exponent := int32(binary.LittleEndian.Uint32(data[pythOffExponent:]))
	rawPrice := int64(binary.LittleEndian.Uint64(data[pythOffAggPrice:]))

	price := float64(rawPrice) * math.Pow10(int(exponent))
	if math.IsNaN(price) || price <= 0 {
		return 0, fmt.Errorf("invalid price value from pyth: %g", price)
	}

	return price, nil
}
