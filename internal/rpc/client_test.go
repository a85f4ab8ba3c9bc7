package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCallCachesGetTransaction(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"slot":42}}`))
	}))
	defer server.Close()

	c := New(Config{Endpoint: server.URL, RequestsPerSecond: 1000, BurstLimit: 1000, CacheTTL: time.Minute}, zerolog.Nop())

	var out1, out2 struct {
		Slot int `json:"slot"`
	}
	require.NoError(t, c.Call(context.Background(), "getTransaction", map[string]any{"sig": "abc"}, &out1))
	require.NoError(t, c.Call(context.Background(), "getTransaction", map[string]any{"sig": "abc"}, &out2))

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Equal(t, 42, out1.Slot)
	require.Equal(t, 1, c.CacheSize())
}

func TestCallDoesNotCacheNonCacheableMethod(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":1234}`))
	}))
	defer server.Close()

	c := New(Config{Endpoint: server.URL, RequestsPerSecond: 1000, BurstLimit: 1000}, zerolog.Nop())

	var out int
	require.NoError(t, c.Call(context.Background(), "sendTransaction", nil, &out))
	require.NoError(t, c.Call(context.Background(), "sendTransaction", nil, &out))
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCallRetriesOn429ThenFatalOn400(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	c := New(Config{
		Endpoint: server.URL, RequestsPerSecond: 1000, BurstLimit: 1000,
		RetryBaseDelay: time.Millisecond, MaxRetries: 3,
	}, zerolog.Nop())

	var out json.RawMessage
	err := c.Call(context.Background(), "getSlot", nil, &out)
	require.Error(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls)) // one 429 retry, then fatal 400 stops retrying
}

func TestLRUSweepEvictsOldestEntries(t *testing.T) {
	c := newCache(time.Minute)
	for i := 0; i < lruSweepThreshold+10; i++ {
		c.set(string(rune(i)), json.RawMessage(`1`))
	}
	require.LessOrEqual(t, c.len(), lruSweepThreshold)
}

func TestCacheKeyIsOrderIndependent(t *testing.T) {
	k1 := cacheKey("getAccountInfo", map[string]any{"a": 1, "b": 2})
	k2 := cacheKey("getAccountInfo", map[string]any{"b": 2, "a": 1})
	require.Equal(t, k1, k2)
}
