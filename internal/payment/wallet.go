package payment

import (
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/x402-labs/inference-gateway/internal/utils"
)

// SettlementWallet holds the service key used to sign refund transfers. A
// single service credential, supplied via config or environment; there is no
// multi-wallet vault here.
type SettlementWallet struct {
	key solana.PrivateKey
}

// LoadSettlementWallet reads settlement_private_key from config. Returns
// (nil, nil) when no key is configured: the gateway runs fine without
// refunds, the coordinator reports not_configured instead.
func LoadSettlementWallet(config *utils.ConfigManager) (*SettlementWallet, error) {
	raw := config.GetConfigWithDefault("settlement_private_key", "")
	if raw == "" {
		return nil, nil
	}

	key, err := parsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid settlement_private_key: %v", err)
	}

	return &SettlementWallet{key: key}, nil
}

// parsePrivateKey accepts the two common encodings: base58 (wallet exports)
// and the JSON byte array written by solana-keygen
func parsePrivateKey(raw string) (solana.PrivateKey, error) {
	if len(raw) > 0 && raw[0] == '[' {
		var ints []int
		if err := json.Unmarshal([]byte(raw), &ints); err != nil {
			return nil, fmt.Errorf("failed to parse keygen-format key: %v", err)
		}
		if len(ints) != 64 {
			return nil, fmt.Errorf("expected 64-byte keypair, got %d bytes", len(ints))
		}
		key := make(solana.PrivateKey, 64)
		for i, b := range ints {
			if b < 0 || b > 255 {
				return nil, fmt.Errorf("keypair byte %d out of range", i)
			}
			key[i] = byte(b)
		}
		return key, nil
	}

	decoded, err := base58.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base58 key: %v", err)
	}
	if len(decoded) != 64 {
		return nil, fmt.Errorf("expected 64-byte keypair, got %d bytes", len(decoded))
	}
	return solana.PrivateKey(decoded), nil
}

// PublicKey returns the settlement account address
func (w *SettlementWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

// Sign signs the given transaction with the settlement key
func (w *SettlementWallet) Sign(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	return err
}
