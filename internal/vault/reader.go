// Package vault reads current on-chain vault composition (§4.10). It
// never mutates chain state and briefly caches each vault's holdings to
// absorb repeated reads within a single orchestrator cycle; a cache hit
// is matched on vault and age only.
package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/vaultrun/internal/domain"
)

const slotBucketSize = 10

// ChainReader fetches token balances for a vault address at a recent
// confirmed slot.
type ChainReader interface {
	VaultTokenBalances(ctx context.Context, vaultAddress string) ([]domain.PortfolioAsset, uint64, error)
}

type cacheEntry struct {
	portfolio domain.Portfolio
	storedAt  time.Time
}

// Reader reads and briefly caches vault holdings.
type Reader struct {
	chain ChainReader
	ttl   time.Duration
	log   zerolog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New constructs a vault Reader. ttl bounds how long a cached snapshot
// may be reused for the same vault.
func New(chain ChainReader, ttl time.Duration, log zerolog.Logger) *Reader {
	return &Reader{
		chain: chain,
		ttl:   ttl,
		log:   log.With().Str("component", "vault_reader").Logger(),
		cache: make(map[string]cacheEntry),
	}
}

// ReadHoldings returns the current on-chain composition of the vault,
// serving any cached snapshot of the same vault stored less than ttl ago.
// Entries are stored under a (vault, slot bucket) key, but the lookup runs
// before the chain read and does not compare slot buckets.
func (r *Reader) ReadHoldings(ctx context.Context, vaultAddress, userID string) (domain.Portfolio, error) {
	assets, slot, err := r.peekFresh(vaultAddress)
	if err == nil {
		return domain.Portfolio{VaultAddress: vaultAddress, Slot: slot, Assets: assets}, nil
	}

	assets, slot, err = r.chain.VaultTokenBalances(ctx, vaultAddress)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("vault reader: %s: %w", vaultAddress, err)
	}

	bucket := slot / slotBucketSize
	key := fmt.Sprintf("%s:%d", vaultAddress, bucket)

	p := domain.Portfolio{VaultAddress: vaultAddress, Slot: slot, Assets: assets}

	r.mu.Lock()
	r.cache[key] = cacheEntry{portfolio: p, storedAt: time.Now()}
	r.mu.Unlock()

	return p, nil
}

func (r *Reader) peekFresh(vaultAddress string) ([]domain.PortfolioAsset, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, entry := range r.cache {
		if !isSameVault(key, vaultAddress) {
			continue
		}
		if time.Since(entry.storedAt) > r.ttl {
			continue
		}
		return entry.portfolio.Assets, entry.portfolio.Slot, nil
	}
	return nil, 0, fmt.Errorf("no fresh cache entry")
}

func isSameVault(key, vaultAddress string) bool {
	return len(key) > len(vaultAddress) && key[:len(vaultAddress)] == vaultAddress && key[len(vaultAddress)] == ':'
}
