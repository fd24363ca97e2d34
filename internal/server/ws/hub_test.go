package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/monitor"
)

// stubBus is an in-process SignalBus: one channel per subscribed topic.
type stubBus struct {
	mu   sync.Mutex
	subs map[string]chan []byte
}

func newStubBus() *stubBus {
	return &stubBus{subs: make(map[string]chan []byte)}
}

func (b *stubBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	ch, ok := b.subs[channel]
	b.mu.Unlock()
	if ok {
		ch <- payload
	}
	return nil
}

func (b *stubBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 16)
	b.subs[channel] = ch
	return ch, nil
}

func (b *stubBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *stubBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

var _ domain.SignalBus = (*stubBus)(nil)

// waitForSubscription blocks until the hub has subscribed to the channel.
func (b *stubBus) waitForSubscription(t *testing.T, channel string) {
	t.Helper()
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		_, ok := b.subs[channel]
		return ok
	}, time.Second, 5*time.Millisecond)
}

func newTestHub(t *testing.T, bus *stubBus) (*Hub, *websocket.Conn) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, logger, Config{Mode: "sim", StartedAt: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return hub, conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}

func TestHubSendsStatusOnConnect(t *testing.T) {
	_, conn := newTestHub(t, newStubBus())

	body := readJSON(t, conn)
	require.Equal(t, "status", body["type"])
	payload, ok := body["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sim", payload["mode"])
	assert.Equal(t, true, payload["ws_connected"])
}

func TestHubRelaysSnapshots(t *testing.T) {
	bus := newStubBus()
	_, conn := newTestHub(t, bus)

	// Drain the status envelope first.
	readJSON(t, conn)

	bus.waitForSubscription(t, monitor.SnapshotChannel)
	snap := []byte(`{"contract_id":"contract-a","state":"WATCHING"}`)
	require.NoError(t, bus.Publish(context.Background(), monitor.SnapshotChannel, snap))

	body := readJSON(t, conn)
	assert.Equal(t, "contract-a", body["contract_id"])
	assert.Equal(t, "WATCHING", body["state"])
}

func TestHubHonorsUnsubscribe(t *testing.T) {
	bus := newStubBus()
	_, conn := newTestHub(t, bus)
	readJSON(t, conn)
	bus.waitForSubscription(t, monitor.SnapshotChannel)

	unsub := `{"action":"unsubscribe","channels":["` + monitor.SnapshotChannel + `"]}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(unsub)))

	// Give the read pump time to apply the change, then publish.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), monitor.SnapshotChannel, []byte(`{"x":1}`)))

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err) // deadline hit, nothing delivered
}

func TestSubscriptionBookkeeping(t *testing.T) {
	c := &client{subs: map[string]bool{monitor.SnapshotChannel: true}}

	assert.True(t, c.isSubscribed(monitor.SnapshotChannel))
	assert.False(t, c.isSubscribed("other"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"other"}})
	assert.True(t, c.isSubscribed("other"))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{monitor.SnapshotChannel}})
	assert.False(t, c.isSubscribed(monitor.SnapshotChannel))
}
