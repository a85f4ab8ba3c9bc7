package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/domain"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
}

func newMemStore() *memStore { return &memStore{records: map[string]domain.IdempotencyRecord{}} }

func (s *memStore) Get(ctx context.Context, key string) (domain.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok, nil
}

func (s *memStore) Put(ctx context.Context, rec domain.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.IdemKey] = rec
	return nil
}

func (s *memStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for k, rec := range s.records {
		if rec.CompletedAt != nil && rec.CompletedAt.Before(cutoff) {
			delete(s.records, k)
			count++
		}
	}
	return count, nil
}

func sampleTrade() domain.GeneratedTrade {
	return domain.GeneratedTrade{
		TradeID:      "t1",
		UserID:       "u1",
		VaultAddress: "vault1",
		Type:         domain.TradeTypeSwap,
		SwapInstruction: domain.SwapInstruction{
			FromMint:   "SOLMint",
			ToMint:     "JUPMint",
			FromAmount: decimal.NewFromInt(100),
		},
		Priority:  1,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// scenario D: submit t1 -> confirmed with signature S; resubmit identical
// t1 -> should_execute=false, existing_signature=S.
func TestCheckAndReserveReplaysConfirmedResult(t *testing.T) {
	store := newMemStore()
	m := New(store, zerolog.Nop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	trade := sampleTrade()
	key, err := TradeExecutionKey("u1", trade)
	require.NoError(t, err)

	should, existing, err := m.CheckAndReserve(context.Background(), key, domain.OpTradeExecution, "u1", nil, now)
	require.NoError(t, err)
	require.True(t, should)
	require.Nil(t, existing)

	err = m.RecordResult(context.Background(), key, true, trade.TradeID, "SIG123", nil, "", now.Add(time.Second))
	require.NoError(t, err)

	should, existing, err = m.CheckAndReserve(context.Background(), key, domain.OpTradeExecution, "u1", nil, now.Add(2*time.Second))
	require.NoError(t, err)
	require.False(t, should)
	require.NotNil(t, existing)
	require.Equal(t, "SIG123", existing.TxSignature)
}

func TestCheckAndReserveRefusesWithinStartedTimeout(t *testing.T) {
	store := newMemStore()
	m := New(store, zerolog.Nop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	should, _, err := m.CheckAndReserve(context.Background(), "key1", domain.OpTradeExecution, "u1", nil, now)
	require.NoError(t, err)
	require.True(t, should)

	should, existing, err := m.CheckAndReserve(context.Background(), "key1", domain.OpTradeExecution, "u1", nil, now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, should)
	require.Nil(t, existing)
}

func TestCheckAndReserveAllowsRetryAfterStartedTimeoutExpires(t *testing.T) {
	store := newMemStore()
	m := New(store, zerolog.Nop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	should, _, err := m.CheckAndReserve(context.Background(), "key1", domain.OpTradeExecution, "u1", nil, now)
	require.NoError(t, err)
	require.True(t, should)

	should, _, err = m.CheckAndReserve(context.Background(), "key1", domain.OpTradeExecution, "u1", nil, now.Add(6*time.Minute))
	require.NoError(t, err)
	require.True(t, should)
}

func TestTradeExecutionKeyIgnoresMutableFields(t *testing.T) {
	t1 := sampleTrade()
	t1.Status = domain.TradeStatusPending

	t2 := sampleTrade()
	t2.Status = domain.TradeStatusConfirmed
	t2.TxSignature = "SIGXYZ"

	k1, err := TradeExecutionKey("u1", t1)
	require.NoError(t, err)
	k2, err := TradeExecutionKey("u1", t2)
	require.NoError(t, err)
	require.Equal(t, k1, k2)
}

func TestTradeGenerationKeyBucketsToFiveMinutes(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	near := base.Add(2 * time.Minute)

	k1, err := TradeGenerationKey("u1", map[string]any{"s": 1}, map[string]any{"p": 1}, base)
	require.NoError(t, err)
	k2, err := TradeGenerationKey("u1", map[string]any{"s": 1}, map[string]any{"p": 1}, near)
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	far := base.Add(10 * time.Minute)
	k3, err := TradeGenerationKey("u1", map[string]any{"s": 1}, map[string]any{"p": 1}, far)
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)
}
