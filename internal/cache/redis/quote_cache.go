package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// quoteTTL bounds how long a pair quote survives without a refresh. A feed
// that stalls longer than this must not keep serving the last book.
const quoteTTL = time.Minute

// QuoteCache implements domain.QuoteCache using Redis hashes. Each contract's
// latest pair quote is stored at key "quote:{contractID}" with fields "data"
// (JSON-encoded quote) and "ts" (Unix nanosecond write time).
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(contractID string) string {
	return "quote:" + contractID
}

// SetPairQuote stores the latest pair quote for a contract and refreshes its
// TTL.
func (qc *QuoteCache) SetPairQuote(ctx context.Context, quote domain.PairQuote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s: %w", quote.ContractID, err)
	}

	key := quoteKey(quote.ContractID)
	fields := map[string]interface{}{
		"data": data,
		"ts":   strconv.FormatInt(quote.Timestamp.UnixNano(), 10),
	}

	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", quote.ContractID, err)
	}
	return nil
}

// GetPairQuote retrieves the latest pair quote for a contract. It returns
// domain.ErrNotFound when no quote has been cached or the entry has expired.
func (qc *QuoteCache) GetPairQuote(ctx context.Context, contractID string) (domain.PairQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(contractID)).Result()
	if err != nil {
		return domain.PairQuote{}, fmt.Errorf("redis: get quote %s: %w", contractID, err)
	}
	if len(vals) == 0 {
		return domain.PairQuote{}, domain.ErrNotFound
	}

	data, ok := vals["data"]
	if !ok {
		return domain.PairQuote{}, domain.ErrNotFound
	}

	var quote domain.PairQuote
	if err := json.Unmarshal([]byte(data), &quote); err != nil {
		return domain.PairQuote{}, fmt.Errorf("redis: unmarshal quote %s: %w", contractID, err)
	}
	return quote, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
