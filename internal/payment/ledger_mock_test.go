package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/x402-labs/inference-gateway/internal/utils"
)

// mockLedger is a scriptable LedgerClient for tests
type mockLedger struct {
	txResult *rpc.GetTransactionResult
	txErr    error
	txCalls  int

	statuses  *rpc.GetSignatureStatusesResult
	statusErr error

	balance    uint64
	balanceErr error

	blockhashErr error

	sendSig solana.Signature
	sendErr error
	sent    []*solana.Transaction

	accountInfo    *rpc.GetAccountInfoResult
	accountInfoErr error
}

func (m *mockLedger) GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	m.txCalls++
	if m.txErr != nil {
		return nil, m.txErr
	}
	return m.txResult, nil
}

func (m *mockLedger) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	if m.statuses != nil {
		return m.statuses, nil
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
}

func (m *mockLedger) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	return &rpc.GetBalanceResult{Value: m.balance}, nil
}

func (m *mockLedger) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if m.blockhashErr != nil {
		return nil, m.blockhashErr
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            solana.Hash{1},
			LastValidBlockHeight: 1000,
		},
	}, nil
}

func (m *mockLedger) SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	m.sent = append(m.sent, transaction)
	if m.sendErr != nil {
		return solana.Signature{}, m.sendErr
	}
	return m.sendSig, nil
}

func (m *mockLedger) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	if m.accountInfoErr != nil {
		return nil, m.accountInfoErr
	}
	return m.accountInfo, nil
}

// transferTxResult builds a fetched-transaction result for a simple transfer
// from payer to recipient with the given balance arrays. Balance order is
// [payer, recipient, system program].
func transferTxResult(t *testing.T, payer *solana.Wallet, recipient solana.PublicKey, preBalances, postBalances []uint64) *rpc.GetTransactionResult {
	t.Helper()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(1, payer.PublicKey(), recipient).Build(),
		},
		solana.Hash{2},
		solana.TransactionPayer(payer.PublicKey()),
	)
	if err != nil {
		t.Fatalf("failed to build transaction: %v", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer.PrivateKey
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to sign transaction: %v", err)
	}

	bin, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal transaction: %v", err)
	}

	var envelope rpc.TransactionResultEnvelope
	encoded := fmt.Sprintf(`["%s","base64"]`, base64.StdEncoding.EncodeToString(bin))
	if err := json.Unmarshal([]byte(encoded), &envelope); err != nil {
		t.Fatalf("failed to build transaction envelope: %v", err)
	}

	return &rpc.GetTransactionResult{
		Slot:        4242,
		Transaction: &envelope,
		Meta: &rpc.TransactionMeta{
			PreBalances:  preBalances,
			PostBalances: postBalances,
		},
	}
}

// testConfig returns a config with fast retry timings so verifier tests run
// in milliseconds
func testConfig(t *testing.T) *utils.ConfigManager {
	t.Helper()

	cm := utils.NewConfigManager("")
	cm.SetConfig("verify_confirm_timeout", "20ms")
	cm.SetConfig("verify_confirm_poll_interval", "2ms")
	cm.SetConfig("verify_max_retries", "3")
	cm.SetConfig("verify_retry_backoff", "1ms")
	return cm
}

func testLogger(t *testing.T) *utils.LogsManager {
	t.Helper()

	logger := utils.NewLogsManager(utils.NewConfigManager(""))
	t.Cleanup(func() { logger.Close() })
	return logger
}
