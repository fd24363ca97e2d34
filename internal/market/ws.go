package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// cacheWriteTimeout bounds each quote cache update.
	cacheWriteTimeout = 2 * time.Second
)

// Feed maintains a live view of each watched contract's two order books
// over the CLOB websocket and writes assembled PairQuotes into the quote
// cache. With the feed running, the monitor's quote fetch becomes a cache
// read and never blocks on HTTP.
type Feed struct {
	wsURL  string
	cache  domain.QuoteCache
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	closed    bool
	contracts map[string]*feedContract
	byToken   map[string]*feedContract

	done chan struct{}
}

// feedContract tracks the latest book per side of one watched contract.
type feedContract struct {
	contractID string
	yesToken   string
	noToken    string
	settlement time.Time

	mu  sync.Mutex
	yes domain.SideQuote
	no  domain.SideQuote
}

// NewFeed creates a Feed for the given websocket endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewFeed(wsURL string, cache domain.QuoteCache, logger *slog.Logger) *Feed {
	return &Feed{
		wsURL:     wsURL,
		cache:     cache,
		logger:    logger.With(slog.String("component", "market_feed")),
		contracts: make(map[string]*feedContract),
		byToken:   make(map[string]*feedContract),
		done:      make(chan struct{}),
	}
}

// Watch registers a contract's token pair. When connected, the feed
// subscribes immediately; otherwise the subscription is sent on the next
// (re)connect.
func (f *Feed) Watch(contractID, yesToken, noToken string, settlement time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fc := &feedContract{
		contractID: contractID,
		yesToken:   yesToken,
		noToken:    noToken,
		settlement: settlement,
	}
	f.contracts[contractID] = fc
	f.byToken[yesToken] = fc
	f.byToken[noToken] = fc

	if f.conn != nil {
		return f.sendSubscribe([]string{yesToken, noToken})
	}
	return nil
}

// Connect establishes the websocket connection, subscribes to every watched
// contract, and starts the read and ping loops.
func (f *Feed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("market/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("market/ws: connect: %w", err)
	}

	f.conn = conn

	f.conn.SetReadDeadline(time.Now().Add(pongWait))
	f.conn.SetPongHandler(func(string) error {
		f.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go f.readLoop()
	go f.pingLoop()

	// Restore subscriptions for every watched contract.
	var assets []string
	for _, fc := range f.contracts {
		assets = append(assets, fc.yesToken, fc.noToken)
	}
	if len(assets) > 0 {
		if err := f.sendSubscribe(assets); err != nil {
			return fmt.Errorf("market/ws: restore subscriptions: %w", err)
		}
	}

	return nil
}

// Close shuts down the connection and stops the loops.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	close(f.done)

	if f.conn != nil {
		_ = f.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return f.conn.Close()
	}
	return nil
}

// sendSubscribe sends a book subscription command. Caller must hold f.mu.
func (f *Feed) sendSubscribe(assetIDs []string) error {
	cmd := struct {
		Type    string   `json:"type"`
		Channel string   `json:"channel"`
		Assets  []string `json:"assets_ids"`
	}{
		Type:    "subscribe",
		Channel: "book",
		Assets:  assetIDs,
	}

	f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads messages until disconnect, then reconnects with backoff.
func (f *Feed) readLoop() {
	for {
		select {
		case <-f.done:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}

			f.logger.Warn("feed disconnected, reconnecting", slog.String("error", err.Error()))
			f.reconnect()
			return // a fresh readLoop is started by reconnect -> Connect
		}

		f.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (f *Feed) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.mu.RLock()
			conn := f.conn
			f.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// bookMessage is a full book snapshot for one token.
type bookMessage struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Bids      []bookLevel `json:"bids"`
	Asks      []bookLevel `json:"asks"`
}

// handleMessage routes a raw message. Only full book snapshots matter here;
// everything else is dropped.
func (f *Feed) handleMessage(raw []byte) {
	var msg bookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.EventType != "book" {
		return
	}

	f.mu.RLock()
	fc, ok := f.byToken[msg.AssetID]
	f.mu.RUnlock()
	if !ok {
		return
	}

	var q domain.SideQuote
	for _, lvl := range msg.Bids {
		price, size := lvl.values()
		q.BidSize += size
		if price > q.BestBid {
			q.BestBid = price
		}
	}
	for _, lvl := range msg.Asks {
		price, size := lvl.values()
		q.AskSize += size
		if q.BestAsk == 0 || price < q.BestAsk {
			q.BestAsk = price
		}
	}

	fc.mu.Lock()
	if msg.AssetID == fc.yesToken {
		fc.yes = q
	} else {
		fc.no = q
	}
	quote := domain.PairQuote{
		ContractID: fc.contractID,
		Yes:        fc.yes,
		No:         fc.no,
		Settlement: fc.settlement,
		Timestamp:  time.Now(),
	}
	fc.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := f.cache.SetPairQuote(ctx, quote); err != nil {
		f.logger.Warn("quote cache write failed",
			slog.String("contract", fc.contractID),
			slog.String("error", err.Error()))
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the feed is closed.
func (f *Feed) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-f.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := f.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
