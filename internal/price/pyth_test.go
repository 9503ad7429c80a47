package price

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type fakeAccountFetcher struct {
	info *rpc.GetAccountInfoResult
	err  error
}

func (f *fakeAccountFetcher) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	return f.info, f.err
}

func pythAccountData(t *testing.T, exponent int32, rawPrice int64, status uint32) *rpc.GetAccountInfoResult {
	t.Helper()

	data := make([]byte, pythMinAccountLen)
	binary.LittleEndian.PutUint32(data[pythOffMagic:], pythMagic)
	binary.LittleEndian.PutUint32(data[pythOffExponent:], uint32(exponent))
	binary.LittleEndian.PutUint64(data[pythOffAggPrice:], uint64(rawPrice))
	binary.LittleEndian.PutUint32(data[pythOffAggStatus:], status)

	var parsed rpc.DataBytesOrJSON
	encoded := fmt.Sprintf(`["%s","base64"]`, base64.StdEncoding.EncodeToString(data))
	if err := json.Unmarshal([]byte(encoded), &parsed); err != nil {
		t.Fatalf("failed to build account data: %v", err)
	}

	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Data: &parsed}}
}

func newTestFeed(t *testing.T, fetcher AccountFetcher) *PythFeed {
	t.Helper()

	feed, err := NewPythFeed(fetcher, solana.NewWallet().PublicKey().String())
	if err != nil {
		t.Fatalf("failed to create feed: %v", err)
	}
	return feed
}

func TestPythDecodesAggregatePrice(t *testing.T) {
	// 14250000000 * 10^-8 = 142.50 USD
	fetcher := &fakeAccountFetcher{info: pythAccountData(t, -8, 14_250_000_000, pythStatusTrading)}
	feed := newTestFeed(t, fetcher)

	price, err := feed.SolPriceUSD(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(price-142.5) > 1e-9 {
		t.Errorf("price = %v, want 142.5", price)
	}
}

func TestPythRejectsBadAccounts(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *fakeAccountFetcher
	}{
		{"not trading", &fakeAccountFetcher{info: pythAccountData(t, -8, 14_250_000_000, 0)}},
		{"negative price", &fakeAccountFetcher{info: pythAccountData(t, -8, -5, pythStatusTrading)}},
		{"missing account", &fakeAccountFetcher{err: rpc.ErrNotFound}},
		{"nil value", &fakeAccountFetcher{info: &rpc.GetAccountInfoResult{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := newTestFeed(t, tt.fetcher)
			if _, err := feed.SolPriceUSD(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPythRejectsBadMagic(t *testing.T) {
	info := pythAccountData(t, -8, 14_250_000_000, pythStatusTrading)
	raw := info.Value.Data.GetBinary()
	corrupted := make([]byte, len(raw))
	copy(corrupted, raw)
	binary.LittleEndian.PutUint32(corrupted[pythOffMagic:], 0xdeadbeef)

	var parsed rpc.DataBytesOrJSON
	encoded := fmt.Sprintf(`["%s","base64"]`, base64.StdEncoding.EncodeToString(corrupted))
	if err := json.Unmarshal([]byte(encoded), &parsed); err != nil {
		t.Fatalf("failed to rebuild account data: %v", err)
	}

	feed := newTestFeed(t, &fakeAccountFetcher{info: &rpc.GetAccountInfoResult{Value: &rpc.Account{Data: &parsed}}})
	if _, err := feed.SolPriceUSD(context.Background()); err == nil {
		t.Fatal("expected bad-magic error")
	}
}
