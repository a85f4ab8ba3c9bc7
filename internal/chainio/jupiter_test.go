package chainio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestJupiterClientQuoteContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		_, _ = w.Write([]byte(`{"outAmount":"5000000000"}`))
	}))
	defer srv.Close()

	j := NewJupiterClient(srv.URL, 0)
	out, err := j.QuoteContext(context.Background(), "MintA", "MintB", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, out.Equal(decimal.NewFromInt(5)))
}

func TestJupiterClientQuoteContextRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	j := NewJupiterClient(srv.URL, 0)
	_, err := j.QuoteContext(context.Background(), "MintA", "MintB", decimal.NewFromInt(1))
	assert.Error(t, err)
}

func TestCoinGeckoHistoricalPriceParsesUSD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"market_data":{"current_price":{"usd":142.7}}}`))
	}))
	defer srv.Close()

	c := NewCoinGeckoHistorical(srv.URL, 0)
	price, err := c.HistoricalPrice(context.Background(), "solana", mustParseDate("2026-01-15"))
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(142.7)))
}
