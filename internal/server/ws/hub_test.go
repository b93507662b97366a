package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

type chanBus struct {
	events  chan []byte
	pattern string
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.pattern = channel
	return b.events, nil
}

func startHub(t *testing.T) (*chanBus, *httptest.Server) {
	t.Helper()
	bus := &chanBus{events: make(chan []byte, 8)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return bus, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readType(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	assert.NoError(t, err)
	check.Equal(t, websocket.TextMessage, kind)
	var m map[string]any
	assert.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestHubRoutesByAuction(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "?auction_id=a1")

	check.Equal(t, "hello", readType(t, conn)["type"])
	check.Equal(t, "auction:*", bus.pattern)

	bus.events <- []byte(`{"type":"bid_accepted","auction_id":"a2"}`)
	bus.events <- []byte(`not json`)
	bus.events <- []byte(`{"type":"bid_accepted","auction_id":"a1"}`)

	got := readType(t, conn)
	check.Equal(t, "a1", got["auction_id"])
}

func TestHubSubscribeFrame(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "")
	readType(t, conn)

	assert.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "auction_id": "a9"}))
	ack := readType(t, conn)
	check.Equal(t, "subscribed", ack["type"])

	bus.events <- []byte(`{"type":"status_changed","auction_id":"a9"}`)
	got := readType(t, conn)
	check.Equal(t, "status_changed", got["type"])
}

func TestHandleSubscription(t *testing.T) {
	c := &client{subs: map[string]bool{}}

	check.Equal(t, 0, len(c.handleSubscription(subscribeMsg{Type: "subscribe"})))
	check.Equal(t, 0, len(c.handleSubscription(subscribeMsg{Type: "shout", AuctionID: "a1"})))

	check.True(t, len(c.handleSubscription(subscribeMsg{Type: "subscribe", AuctionID: allAuctions})) > 0)
	check.True(t, c.follows("anything"))

	c.handleSubscription(subscribeMsg{Type: "unsubscribe", AuctionID: allAuctions})
	check.False(t, c.follows("anything"))
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func TestHubShutdownClosesClients(t *testing.T) {
	bus := &chanBus{events: make(chan []byte, 8)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- hub.Run(ctx) }()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "?auction_id=a1")
	check.Equal(t, "hello", readType(t, conn)["type"])

	// The acknowledgement races the shutdown.
	assert.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "auction_id": "a2"}))
	cancel()
	select {
	case err := <-stopped:
		check.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			check.False(t, isTimeout(err))
			break
		}
	}

	// Upgrades after shutdown are closed straight away.
	late := dial(t, srv, "")
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := late.ReadMessage()
	assert.Error(t, err)
	check.False(t, isTimeout(err))
}
