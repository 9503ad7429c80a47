// Package price resolves the SOL/USD rate used to quote payment requirements.
//
// Resolution is layered so a quote can always be produced: fresh cache, then
// the HTTP price index, then the Pyth on-chain feed (mainnet only), then the
// stale cache, then a fixed constant. Source failures fall through, they are
// never surfaced to the caller.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/x402-labs/inference-gateway/internal/utils"
)

// FallbackPriceUSD is returned when every source is exhausted and no cached
// value exists
const FallbackPriceUSD = 150.0

type cacheEntry struct {
	price     float64
	timestamp time.Time
}

// Oracle resolves the SOL price in USD with caching and multi-source fallback
type Oracle struct {
	config     *utils.ConfigManager
	logger     *utils.LogsManager
	httpClient *http.Client
	pyth       *PythFeed

	indexURL string
	cluster  string
	ttl      time.Duration
	fallback float64

	mu    sync.Mutex
	cache *cacheEntry

	// Injected for tests
	now func() time.Time
}

// NewOracle creates a price oracle. pyth may be nil when no on-chain feed is
// available.
func NewOracle(config *utils.ConfigManager, logger *utils.LogsManager, pyth *PythFeed) *Oracle {
	timeout := config.GetConfigDuration("price_index_timeout", 5*time.Second)

	return &Oracle{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		pyth:       pyth,
		indexURL:   config.GetConfigWithDefault("price_index_url", "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"),
		cluster:    config.GetConfigWithDefault("solana_cluster", "devnet"),
		ttl:        config.GetConfigDuration("price_cache_ttl", 5*time.Minute),
		fallback:   config.GetConfigFloat64("price_fallback_usd", FallbackPriceUSD, 0.01, 1_000_000),
		now:        time.Now,
	}
}

// GetSolPriceUSD resolves the current SOL/USD price. It never fails: total
// source exhaustion returns the configured fallback constant, because the
// inability to quote a price would otherwise be a denial of service.
func (o *Oracle) GetSolPriceUSD(ctx context.Context) float64 {
	if price, ok := o.cachedFresh(); ok {
		return price
	}

	if price, err := o.fetchIndex(ctx); err == nil {
		o.refreshCache(price)
		return price
	} else {
		o.logger.Warn(fmt.Sprintf("Price index fetch failed: %v", err), "price")
	}

	// The Pyth SOL/USD feed only exists on mainnet-beta; on other clusters
	// skip straight to the stale cache
	if o.pyth != nil && isMainnet(o.cluster) {
		if price, err := o.pyth.SolPriceUSD(ctx); err == nil {
			o.refreshCache(price)
			return price
		} else {
			o.logger.Warn(fmt.Sprintf("Pyth price feed failed: %v", err), "price")
		}
	}

	if price, ok := o.cachedAny(); ok {
		o.logger.Warn("Serving stale cached SOL price after source failures", "price")
		return price
	}

	o.logger.Warn(fmt.Sprintf("All price sources exhausted, using fallback %.2f USD", o.fallback), "price")
	return o.fallback
}

func (o *Oracle) cachedFresh() (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cache != nil && o.now().Sub(o.cache.timestamp) < o.ttl {
		return o.cache.price, true
	}
	return 0, false
}

// cachedAny returns the last known price regardless of staleness
func (o *Oracle) cachedAny() (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cache != nil {
		return o.cache.price, true
	}
	return 0, false
}

// refreshCache swaps the single cache entry. Two concurrent misses both
// refreshing is fine, last writer wins.
func (o *Oracle) refreshCache(price float64) {
	o.mu.Lock()
	o.cache = &cacheEntry{price: price, timestamp: o.now()}
	o.mu.Unlock()
}

// fetchIndex queries the external price index (CoinGecko simple-price shape)
func (o *Oracle) fetchIndex(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", o.indexURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price index returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var parsed map[string]map[string]float64
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse price index response: %v", err)
	}

	price := parsed["solana"]["usd"]
	if price <= 0 {
		return 0, fmt.Errorf("price index returned invalid price %g", price)
	}

	return price, nil
}

func isMainnet(cluster string) bool {
	c := strings.TrimPrefix(strings.TrimSpace(cluster), "solana:")
	if c == "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp" { // CAIP-2 genesis hash
		return true
	}
	switch strings.ToLower(c) {
	case "mainnet-beta", "mainnet":
		return true
	}
	return false
}
