package payment

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/x402-labs/inference-gateway/internal/utils"
)

// Receipt mirrors the on-chain receipt account written by the client-side
// receipt program. The write side is owned by the client; the gateway only
// reads it for auditability.
type Receipt struct {
	Payer     solana.PublicKey
	Merchant  solana.PublicKey
	Reference string
	ModelID   string
	Amount    uint64
	TxSig     string
	Timestamp int64
}

// ReceiptReader looks up receipt records by reference via their PDA
type ReceiptReader struct {
	client    LedgerClient
	logger    *utils.LogsManager
	programID solana.PublicKey
}

// NewReceiptReader creates a reader for the configured receipt program.
// Returns nil when no program id is configured.
func NewReceiptReader(config *utils.ConfigManager, logger *utils.LogsManager, client LedgerClient) (*ReceiptReader, error) {
	programStr := config.GetConfigWithDefault("receipt_program_id", "")
	if programStr == "" {
		return nil, nil
	}

	programID, err := solana.PublicKeyFromBase58(programStr)
	if err != nil {
		return nil, fmt.Errorf("invalid receipt_program_id: %v", err)
	}

	return &ReceiptReader{
		client:    client,
		logger:    logger,
		programID: programID,
	}, nil
}

// ReceiptAddress derives the PDA for a reference, using the program's seeds
// ["receipt", reference]. The whole reference is one seed, so references
// beyond the 32-byte seed cap cannot have a receipt account.
func (r *ReceiptReader) ReceiptAddress(reference string) (solana.PublicKey, error) {
	seeds := [][]byte{[]byte("receipt"), []byte(reference)}

	pda, _, err := solana.FindProgramAddress(seeds, r.programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive receipt address: %v", err)
	}
	return pda, nil
}

// FindReceipt fetches and decodes the receipt record for a reference
func (r *ReceiptReader) FindReceipt(ctx context.Context, reference string) (*Receipt, error) {
	pda, err := r.ReceiptAddress(reference)
	if err != nil {
		return nil, err
	}

	info, err := r.client.GetAccountInfo(ctx, pda)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: reference %s", ErrReceiptNotFound, reference)
		}
		return nil, fmt.Errorf("receipt lookup failed: %v", err)
	}
	if info == nil || info.Value == nil {
		return nil, fmt.Errorf("%w: reference %s", ErrReceiptNotFound, reference)
	}

	receipt, err := decodeReceipt(info.Value.Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("failed to decode receipt account: %v", err)
	}

	if receipt.Reference != reference {
		return nil, fmt.Errorf("receipt reference mismatch: stored %q, expected %q", receipt.Reference, reference)
	}

	return receipt, nil
}

// decodeReceipt parses the Anchor account layout: an 8-byte discriminator
// followed by Borsh-encoded fields (strings are u32 length + bytes, integers
// little-endian)
func decodeReceipt(data []byte) (*Receipt, error) {
	const discriminatorLen = 8
	if len(data) < discriminatorLen+64 {
		return nil, fmt.Errorf("account data too short: %d bytes", len(data))
	}

	pos := discriminatorLen
	receipt := &Receipt{}

	copy(receipt.Payer[:], data[pos:pos+32])
	pos += 32
	copy(receipt.Merchant[:], data[pos:pos+32])
	pos += 32

	var err error
	if receipt.Reference, pos, err = readBorshString(data, pos); err != nil {
		return nil, fmt.Errorf("reference: %v", err)
	}
	if receipt.ModelID, pos, err = readBorshString(data, pos); err != nil {
		return nil, fmt.Errorf("model id: %v", err)
	}

	if pos+8 > len(data) {
		return nil, fmt.Errorf("truncated amount field")
	}
	receipt.Amount = binary.LittleEndian.Uint64(data[pos:])
	pos += 8

	if receipt.TxSig, pos, err = readBorshString(data, pos); err != nil {
		return nil, fmt.Errorf("tx signature: %v", err)
	}

	if pos+8 > len(data) {
		return nil, fmt.Errorf("truncated timestamp field")
	}
	receipt.Timestamp = int64(binary.LittleEndian.Uint64(data[pos:]))

	return receipt, nil
}

func readBorshString(data []byte, pos int) (string, int, error) {
	if pos+4 > len(data) {
		return "", pos, fmt.Errorf("truncated string length at offset %d", pos)
	}
	length := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	if length < 0 || pos+length > len(data) {
		return "", pos, fmt.Errorf("string of length %d overruns account data", length)
	}
	return string(data[pos : pos+length]), pos + length, nil
}
