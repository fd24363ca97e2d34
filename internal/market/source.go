package market

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// CachedQuoteSource serves quotes cache-first: the websocket feed keeps the
// cache hot, so the decision loop almost never blocks on HTTP. A missing or
// stale entry falls through to the REST source.
type CachedQuoteSource struct {
	cache    domain.QuoteCache
	fallback domain.QuoteSource
	maxAge   time.Duration
	now      func() time.Time
}

// NewCachedQuoteSource creates a CachedQuoteSource. maxAge bounds how old a
// cached quote may be before the fallback is consulted.
func NewCachedQuoteSource(cache domain.QuoteCache, fallback domain.QuoteSource, maxAge time.Duration) *CachedQuoteSource {
	return &CachedQuoteSource{
		cache:    cache,
		fallback: fallback,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// PairQuote returns the cached quote when fresh, otherwise fetches from the
// fallback source and refreshes the cache on success.
func (s *CachedQuoteSource) PairQuote(ctx context.Context, contractID string) (domain.PairQuote, error) {
	cached, err := s.cache.GetPairQuote(ctx, contractID)
	if err == nil && s.now().Sub(cached.Timestamp) <= s.maxAge {
		return cached, nil
	}
	// A broken cache is not a broken market; a miss, a stale entry, and a
	// cache failure all fall through to the REST source.
	quote, err := s.fallback.PairQuote(ctx, contractID)
	if err != nil {
		return domain.PairQuote{}, fmt.Errorf("market: cached source fallback: %w", err)
	}

	_ = s.cache.SetPairQuote(ctx, quote)
	return quote, nil
}

// Compile-time interface check.
var _ domain.QuoteSource = (*CachedQuoteSource)(nil)
