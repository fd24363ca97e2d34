package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// ClobQuoteSource fetches pair quotes from the CLOB REST API. Market
// metadata (token IDs per side, settlement time) is resolved once per
// contract and cached; order books are fetched fresh on every call so the
// risk gate never evaluates a stale quote.
type ClobQuoteSource struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	markets map[string]*marketInfo
}

type marketInfo struct {
	yesTokenID string
	noTokenID  string
	settlement time.Time
}

// NewClobQuoteSource creates a quote source against the given CLOB host,
// e.g. "https://clob.polymarket.com".
func NewClobQuoteSource(baseURL string) *ClobQuoteSource {
	return &ClobQuoteSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		markets: make(map[string]*marketInfo),
	}
}

// PairQuote resolves the contract's tokens and fetches both order books.
// Any transport or decode failure wraps domain.ErrQuoteUnavailable; an
// empty book is returned as-is, it is "no data yet", not an error.
func (c *ClobQuoteSource) PairQuote(ctx context.Context, contractID string) (domain.PairQuote, error) {
	info, err := c.market(ctx, contractID)
	if err != nil {
		return domain.PairQuote{}, err
	}

	yes, err := c.book(ctx, info.yesTokenID)
	if err != nil {
		return domain.PairQuote{}, err
	}
	no, err := c.book(ctx, info.noTokenID)
	if err != nil {
		return domain.PairQuote{}, err
	}

	return domain.PairQuote{
		ContractID: contractID,
		Yes:        yes,
		No:         no,
		Settlement: info.settlement,
		Timestamp:  time.Now(),
	}, nil
}

// TokenIDs returns the resolved token IDs for a contract, fetching market
// metadata when needed. The websocket feed uses this to subscribe.
func (c *ClobQuoteSource) TokenIDs(ctx context.Context, contractID string) (yes, no string, err error) {
	info, err := c.market(ctx, contractID)
	if err != nil {
		return "", "", err
	}
	return info.yesTokenID, info.noTokenID, nil
}

// Settlement returns the contract's scheduled resolution time.
func (c *ClobQuoteSource) Settlement(ctx context.Context, contractID string) (time.Time, error) {
	info, err := c.market(ctx, contractID)
	if err != nil {
		return time.Time{}, err
	}
	return info.settlement, nil
}

func (c *ClobQuoteSource) market(ctx context.Context, contractID string) (*marketInfo, error) {
	c.mu.Lock()
	if info, ok := c.markets[contractID]; ok {
		c.mu.Unlock()
		return info, nil
	}
	c.mu.Unlock()

	body, err := c.get(ctx, "/markets/"+url.PathEscape(contractID))
	if err != nil {
		return nil, fmt.Errorf("market: fetch market %s: %w: %v", contractID, domain.ErrQuoteUnavailable, err)
	}

	var resp struct {
		ConditionID string `json:"condition_id"`
		EndDateISO  string `json:"end_date_iso"`
		Tokens      []struct {
			TokenID string `json:"token_id"`
			Outcome string `json:"outcome"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("market: decode market %s: %w: %v", contractID, domain.ErrQuoteUnavailable, err)
	}

	info := &marketInfo{}
	for _, tok := range resp.Tokens {
		switch strings.ToLower(tok.Outcome) {
		case "yes":
			info.yesTokenID = tok.TokenID
		case "no":
			info.noTokenID = tok.TokenID
		}
	}
	if info.yesTokenID == "" || info.noTokenID == "" {
		return nil, fmt.Errorf("market: market %s missing yes/no tokens: %w", contractID, domain.ErrQuoteUnavailable)
	}
	if resp.EndDateISO != "" {
		if t, err := time.Parse(time.RFC3339, resp.EndDateISO); err == nil {
			info.settlement = t
		}
	}

	c.mu.Lock()
	c.markets[contractID] = info
	c.mu.Unlock()
	return info, nil
}

func (c *ClobQuoteSource) book(ctx context.Context, tokenID string) (domain.SideQuote, error) {
	body, err := c.get(ctx, "/book?token_id="+url.QueryEscape(tokenID))
	if err != nil {
		return domain.SideQuote{}, fmt.Errorf("market: fetch book %s: %w: %v", tokenID, domain.ErrQuoteUnavailable, err)
	}

	var resp struct {
		Bids []bookLevel `json:"bids"`
		Asks []bookLevel `json:"asks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SideQuote{}, fmt.Errorf("market: decode book %s: %w: %v", tokenID, domain.ErrQuoteUnavailable, err)
	}

	var q domain.SideQuote
	for _, lvl := range resp.Bids {
		price, size := lvl.values()
		q.BidSize += size
		if price > q.BestBid {
			q.BestBid = price
		}
	}
	for _, lvl := range resp.Asks {
		price, size := lvl.values()
		q.AskSize += size
		if q.BestAsk == 0 || price < q.BestAsk {
			q.BestAsk = price
		}
	}
	return q, nil
}

// bookLevel decodes the API's string-encoded price levels.
type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

func (l bookLevel) values() (price, size float64) {
	price, _ = strconv.ParseFloat(l.Price, 64)
	size, _ = strconv.ParseFloat(l.Size, 64)
	return price, size
}

func (c *ClobQuoteSource) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Compile-time interface check.
var _ domain.QuoteSource = (*ClobQuoteSource)(nil)
