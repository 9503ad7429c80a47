package payment

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

func borshString(s string) []byte {
	out := make([]byte, 4+len(s))
	binary.LittleEndian.PutUint32(out, uint32(len(s)))
	copy(out[4:], s)
	return out
}

func encodeReceiptAccount(payer, merchant solana.PublicKey, reference, modelID string, amount uint64, txSig string, timestamp int64) []byte {
	data := make([]byte, 8) // discriminator
	data = append(data, payer[:]...)
	data = append(data, merchant[:]...)
	data = append(data, borshString(reference)...)
	data = append(data, borshString(modelID)...)
	amt := make([]byte, 8)
	binary.LittleEndian.PutUint64(amt, amount)
	data = append(data, amt...)
	data = append(data, borshString(txSig)...)
	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, uint64(timestamp))
	return append(data, ts...)
}

func accountInfoWithData(t *testing.T, data []byte) *rpc.GetAccountInfoResult {
	t.Helper()

	var parsed rpc.DataBytesOrJSON
	encoded := fmt.Sprintf(`["%s","base64"]`, base64.StdEncoding.EncodeToString(data))
	if err := json.Unmarshal([]byte(encoded), &parsed); err != nil {
		t.Fatalf("failed to build account data: %v", err)
	}

	return &rpc.GetAccountInfoResult{
		Value: &rpc.Account{Data: &parsed},
	}
}

func newTestReceiptReader(t *testing.T, ledger *mockLedger) *ReceiptReader {
	t.Helper()

	cm := testConfig(t)
	cm.SetConfig("receipt_program_id", solana.NewWallet().PublicKey().String())

	reader, err := NewReceiptReader(cm, testLogger(t), ledger)
	if err != nil {
		t.Fatalf("failed to create receipt reader: %v", err)
	}
	return reader
}

func TestDecodeReceipt(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	merchant := solana.NewWallet().PublicKey()
	data := encodeReceiptAccount(payer, merchant, "ref-123", "gpt-4.1", 300_000, testSig, 1_756_000_000)

	receipt, err := decodeReceipt(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !receipt.Payer.Equals(payer) || !receipt.Merchant.Equals(merchant) {
		t.Error("payer or merchant mismatch")
	}
	if receipt.Reference != "ref-123" {
		t.Errorf("reference = %q, want ref-123", receipt.Reference)
	}
	if receipt.ModelID != "gpt-4.1" {
		t.Errorf("model id = %q, want gpt-4.1", receipt.ModelID)
	}
	if receipt.Amount != 300_000 {
		t.Errorf("amount = %d, want 300000", receipt.Amount)
	}
	if receipt.Timestamp != 1_756_000_000 {
		t.Errorf("timestamp = %d", receipt.Timestamp)
	}
}

func TestDecodeReceiptTruncated(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	merchant := solana.NewWallet().PublicKey()
	data := encodeReceiptAccount(payer, merchant, "ref-123", "gpt-4.1", 300_000, testSig, 1_756_000_000)

	for _, cut := range []int{0, 8, 40, 75, len(data) - 4} {
		if _, err := decodeReceipt(data[:cut]); err == nil {
			t.Errorf("expected error for %d-byte account data", cut)
		}
	}
}

func TestFindReceipt(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	merchant := solana.NewWallet().PublicKey()

	t.Run("found", func(t *testing.T) {
		data := encodeReceiptAccount(payer, merchant, "ref-9", "gpt-4.1", 1000, testSig, 1)
		ledger := &mockLedger{accountInfo: accountInfoWithData(t, data)}
		reader := newTestReceiptReader(t, ledger)

		receipt, err := reader.FindReceipt(context.Background(), "ref-9")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if receipt.Reference != "ref-9" {
			t.Errorf("reference = %q", receipt.Reference)
		}
	})

	t.Run("missing account", func(t *testing.T) {
		ledger := &mockLedger{accountInfoErr: rpc.ErrNotFound}
		reader := newTestReceiptReader(t, ledger)

		_, err := reader.FindReceipt(context.Background(), "ref-9")
		if !errors.Is(err, ErrReceiptNotFound) {
			t.Fatalf("expected ErrReceiptNotFound, got %v", err)
		}
	})

	t.Run("reference mismatch", func(t *testing.T) {
		data := encodeReceiptAccount(payer, merchant, "other-ref", "gpt-4.1", 1000, testSig, 1)
		ledger := &mockLedger{accountInfo: accountInfoWithData(t, data)}
		reader := newTestReceiptReader(t, ledger)

		if _, err := reader.FindReceipt(context.Background(), "ref-9"); err == nil {
			t.Fatal("expected mismatch error")
		}
	})
}

func TestReceiptReaderDisabledWithoutProgram(t *testing.T) {
	cm := testConfig(t)
	cm.SetConfig("receipt_program_id", "")
	t.Setenv("RECEIPT_PROGRAM_ID", "")

	reader, err := NewReceiptReader(cm, testLogger(t), &mockLedger{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reader != nil {
		t.Fatal("expected nil reader when no program id is configured")
	}
}

func TestReceiptAddressMatchesProgramSeeds(t *testing.T) {
	reader := newTestReceiptReader(t, &mockLedger{})

	// The address the reader checks must be the one the program would
	// create: seeds ["receipt", reference], the reference as a single seed
	ref := NewReference()
	addr, err := reader.ReceiptAddress(ref)
	if err != nil {
		t.Fatalf("derivation failed for %q: %v", ref, err)
	}

	want, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("receipt"), []byte(ref)}, reader.programID)
	if err != nil {
		t.Fatalf("program-side derivation failed for %q: %v", ref, err)
	}
	if !addr.Equals(want) {
		t.Errorf("reader derived %s, program would use %s", addr, want)
	}

	// Derivation must be deterministic
	again, err := reader.ReceiptAddress(ref)
	if err != nil {
		t.Fatalf("second derivation failed: %v", err)
	}
	if !addr.Equals(again) {
		t.Error("derivation is not deterministic")
	}
}

func TestReceiptAddressRejectsOversizedReference(t *testing.T) {
	reader := newTestReceiptReader(t, &mockLedger{})

	ref := strings.Repeat("x", solana.MaxSeedLength+1)
	if _, err := reader.ReceiptAddress(ref); err == nil {
		t.Fatal("expected error for a reference beyond the seed cap")
	}
}
