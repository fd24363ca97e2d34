package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type mapCache struct {
	quotes map[string]domain.PairQuote
	sets   int
}

func (c *mapCache) SetPairQuote(_ context.Context, q domain.PairQuote) error {
	if c.quotes == nil {
		c.quotes = make(map[string]domain.PairQuote)
	}
	c.quotes[q.ContractID] = q
	c.sets++
	return nil
}

func (c *mapCache) GetPairQuote(_ context.Context, contractID string) (domain.PairQuote, error) {
	q, ok := c.quotes[contractID]
	if !ok {
		return domain.PairQuote{}, domain.ErrNotFound
	}
	return q, nil
}

type countingSource struct {
	quote domain.PairQuote
	err   error
	calls int
}

func (s *countingSource) PairQuote(context.Context, string) (domain.PairQuote, error) {
	s.calls++
	return s.quote, s.err
}

func TestCachedSourceServesFreshEntry(t *testing.T) {
	now := time.Now()
	cache := &mapCache{}
	require.NoError(t, cache.SetPairQuote(context.Background(), domain.PairQuote{
		ContractID: "c1",
		Yes:        domain.SideQuote{BestBid: 0.39, BestAsk: 0.41},
		Timestamp:  now,
	}))
	fallback := &countingSource{}

	src := NewCachedQuoteSource(cache, fallback, 5*time.Second)
	src.now = func() time.Time { return now.Add(time.Second) }

	quote, err := src.PairQuote(context.Background(), "c1")
	require.NoError(t, err)
	assert.InDelta(t, 0.41, quote.Yes.BestAsk, 1e-9)
	assert.Zero(t, fallback.calls)
}

func TestCachedSourceFallsBackWhenStale(t *testing.T) {
	now := time.Now()
	cache := &mapCache{}
	require.NoError(t, cache.SetPairQuote(context.Background(), domain.PairQuote{
		ContractID: "c1",
		Timestamp:  now.Add(-time.Minute),
	}))
	fallback := &countingSource{quote: domain.PairQuote{
		ContractID: "c1",
		Yes:        domain.SideQuote{BestAsk: 0.50},
		Timestamp:  now,
	}}

	src := NewCachedQuoteSource(cache, fallback, 5*time.Second)
	src.now = func() time.Time { return now }

	quote, err := src.PairQuote(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, fallback.calls)
	assert.InDelta(t, 0.50, quote.Yes.BestAsk, 1e-9)

	// The fetched quote refreshed the cache.
	assert.Equal(t, 2, cache.sets)
}

func TestCachedSourceFallsBackOnMiss(t *testing.T) {
	fallback := &countingSource{quote: domain.PairQuote{ContractID: "c1", Timestamp: time.Now()}}
	src := NewCachedQuoteSource(&mapCache{}, fallback, 5*time.Second)

	_, err := src.PairQuote(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, fallback.calls)
}

func TestCachedSourceSurfacesFallbackError(t *testing.T) {
	fallback := &countingSource{err: domain.ErrQuoteUnavailable}
	src := NewCachedQuoteSource(&mapCache{}, fallback, 5*time.Second)

	_, err := src.PairQuote(context.Background(), "c1")
	require.ErrorIs(t, err, domain.ErrQuoteUnavailable)
}
