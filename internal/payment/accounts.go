package payment

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// txAccounts is the flattened account view of a fetched transaction, in
// balance-array order: static message keys first, then the writable and
// read-only addresses loaded from lookup tables (versioned transactions).
type txAccounts struct {
	keys       []solana.PublicKey
	numSigners int
	meta       *rpc.TransactionMeta
}

func resolveAccounts(res *rpc.GetTransactionResult) (*txAccounts, error) {
	if res == nil || res.Transaction == nil || res.Meta == nil {
		return nil, fmt.Errorf("transaction result missing payload or meta")
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %v", err)
	}

	msg := tx.Message
	keys := make([]solana.PublicKey, 0, len(msg.AccountKeys))
	keys = append(keys, msg.AccountKeys...)
	keys = append(keys, res.Meta.LoadedAddresses.Writable...)
	keys = append(keys, res.Meta.LoadedAddresses.ReadOnly...)

	if len(res.Meta.PreBalances) != len(keys) || len(res.Meta.PostBalances) != len(keys) {
		return nil, fmt.Errorf("balance arrays (%d/%d) do not match account list (%d)",
			len(res.Meta.PreBalances), len(res.Meta.PostBalances), len(keys))
	}

	return &txAccounts{
		keys:       keys,
		numSigners: int(msg.Header.NumRequiredSignatures),
		meta:       res.Meta,
	}, nil
}

// indexOf returns the position of pubkey in the account list, or -1
func (a *txAccounts) indexOf(pubkey solana.PublicKey) int {
	for i, k := range a.keys {
		if k.Equals(pubkey) {
			return i
		}
	}
	return -1
}

// delta returns postBalance - preBalance for the account at index i
func (a *txAccounts) delta(i int) *big.Int {
	pre := new(big.Int).SetUint64(a.meta.PreBalances[i])
	post := new(big.Int).SetUint64(a.meta.PostBalances[i])
	return post.Sub(post, pre)
}

// isSigner reports whether the account at index i signed the transaction.
// Loaded addresses are never signers, only leading static keys can be.
func (a *txAccounts) isSigner(i int) bool {
	return i < a.numSigners
}
