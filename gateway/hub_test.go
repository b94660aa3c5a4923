package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/obmirror/go-orderbook-mirror/domain"
	"github.com/obmirror/go-orderbook-mirror/helpers"
)

func newTestStorage(t *testing.T) *domain.OrderBookStorage {
	t.Helper()

	storage := domain.NewOrderBookStorage()

	books := map[domain.Pair]*domain.OrderBookSnapshot{
		"btcusdt": {
			LastUpdateId: 100,
			Bids:         [][]string{{"100", "1"}, {"99", "2"}},
			Asks:         [][]string{{"101", "1"}},
		},
		"ethusdt": {
			LastUpdateId: 200,
			Bids:         [][]string{{"10", "5"}},
			Asks:         [][]string{{"11", "5"}},
		},
	}

	for pair, snapshot := range books {
		ob, err := domain.NewOrderBook(pair, snapshot)
		if err != nil {
			t.Fatal(err)
		}
		if err := storage.Add(pair, ob); err != nil {
			t.Fatal(err)
		}
	}

	return storage
}

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
	}))
}

func dialSubscriber(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}

	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read an envelope: %v", err)
	}

	eventType, payload, err := decodeEnvelope(raw)
	if err != nil {
		t.Fatalf("failed to decode %s: %v", raw, err)
	}

	return eventType, payload
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))

	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", raw)
	}
}

func TestHub_BroadcastsSelectedPairToEveryone(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), newTestStorage(t), 5)
	server := newHubServer(t, hub)
	defer server.Close()

	sub1 := dialSubscriber(t, server)
	defer sub1.Close()
	sub2 := dialSubscriber(t, server)
	defer sub2.Close()

	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 2 },
		2*time.Second, 10*time.Millisecond, "both subscribers should register")

	err := sub1.WriteMessage(websocket.TextMessage, []byte(`["pair-token","btcusdt"]`))
	if err != nil {
		t.Fatal(err)
	}

	assert.Eventually(t, func() bool { return hub.Selection() == domain.Pair("btcusdt") },
		2*time.Second, 10*time.Millisecond, "the selection message should be applied")

	hub.BookUpdated("btcusdt")

	expected := helpers.ToJsonString(PairInfoPayload{
		Result: BookResult{
			Bids: [][]string{{"100", "1"}, {"99", "2"}},
			Asks: [][]string{{"101", "1"}},
		},
	})

	// sub2 never selected anything but receives the same data
	for _, conn := range []*websocket.Conn{sub1, sub2} {
		eventType, payload := readEnvelope(t, conn)
		assert.Equal(t, EventPairInfo, eventType, "event type should match")
		assert.JSONEq(t, expected, string(payload), "payload should match the projection")
	}
}

func TestHub_LastSelectionWins(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), newTestStorage(t), 5)
	server := newHubServer(t, hub)
	defer server.Close()

	sub1 := dialSubscriber(t, server)
	defer sub1.Close()
	sub2 := dialSubscriber(t, server)
	defer sub2.Close()

	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	if err := sub1.WriteMessage(websocket.TextMessage, []byte(`["pair-token","ethusdt"]`)); err != nil {
		t.Fatal(err)
	}
	assert.Eventually(t, func() bool { return hub.Selection() == domain.Pair("ethusdt") },
		2*time.Second, 10*time.Millisecond)

	if err := sub2.WriteMessage(websocket.TextMessage, []byte(`["pair-token","btcusdt"]`)); err != nil {
		t.Fatal(err)
	}
	assert.Eventually(t, func() bool { return hub.Selection() == domain.Pair("btcusdt") },
		2*time.Second, 10*time.Millisecond, "the most recent selection from any subscriber wins")

	// a diff merged for ethusdt still projects the selected btcusdt
	hub.BookUpdated("ethusdt")

	expected := helpers.ToJsonString(PairInfoPayload{
		Result: BookResult{
			Bids: [][]string{{"100", "1"}, {"99", "2"}},
			Asks: [][]string{{"101", "1"}},
		},
	})

	for _, conn := range []*websocket.Conn{sub1, sub2} {
		eventType, payload := readEnvelope(t, conn)
		assert.Equal(t, EventPairInfo, eventType, "event type should match")
		assert.JSONEq(t, expected, string(payload), "every subscriber gets the shared selection")
	}
}

func TestHub_NoSelectionNoPush(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), newTestStorage(t), 5)
	server := newHubServer(t, hub)
	defer server.Close()

	sub := dialSubscriber(t, server)
	defer sub.Close()

	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.BookUpdated("btcusdt")
	hub.TickerUpdated(&domain.TickerUpdate{Pair: "btcusdt", Topic: "btcusdt@ticker"})

	expectSilence(t, sub)
}

func TestHub_TickerFilter(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), newTestStorage(t), 5)
	server := newHubServer(t, hub)
	defer server.Close()

	sub := dialSubscriber(t, server)
	defer sub.Close()

	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.SetSelection("btcusdt")

	// topic does not contain the selection: filtered out
	hub.TickerUpdated(&domain.TickerUpdate{
		Pair: "ethusdt", Topic: "ethusdt@ticker", HighPrice: "9",
	})
	// matching topic: pushed
	hub.TickerUpdated(&domain.TickerUpdate{
		Pair:        "btcusdt",
		Topic:       "btcusdt@ticker",
		HighPrice:   "23400.00",
		LowPrice:    "22850.12",
		PriceChange: "-94.99",
		Volume:      "8913.30",
	})

	eventType, payload := readEnvelope(t, sub)
	assert.Equal(t, EventPairExtra, eventType, "event type should match")
	assert.JSONEq(t, helpers.ToJsonString(PairExtraPayload{
		Result: TickerResult{
			HighPrice:   "23400.00",
			LowPrice:    "22850.12",
			PriceChange: "-94.99",
			Volume:      "8913.30",
		},
	}), string(payload), "only the matching ticker should arrive")
}

func TestHub_DisconnectIsIsolated(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), newTestStorage(t), 5)
	server := newHubServer(t, hub)
	defer server.Close()

	sub1 := dialSubscriber(t, server)
	defer sub1.Close()
	sub2 := dialSubscriber(t, server)

	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	sub2.Close()

	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond, "the closed subscriber should be removed")

	hub.SetSelection("btcusdt")
	hub.BookUpdated("btcusdt")

	eventType, _ := readEnvelope(t, sub1)
	assert.Equal(t, EventPairInfo, eventType, "the surviving subscriber keeps receiving data")
}

func TestHub_SlowSubscriberIsEvicted(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), newTestStorage(t), 5)
	server := newHubServer(t, hub)
	defer server.Close()

	slow := dialSubscriber(t, server)
	defer slow.Close()
	fast := dialSubscriber(t, server)
	defer fast.Close()

	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	received := make(chan string, 1024)
	go func() {
		for {
			_, raw, err := fast.ReadMessage()
			if err != nil {
				return
			}
			eventType, _, err := decodeEnvelope(raw)
			if err != nil {
				continue
			}
			select {
			case received <- eventType:
			default:
			}
		}
	}()

	// the slow subscriber never reads: large payloads fill its socket
	// buffers, then its send buffer, until a push cannot be queued
	filler := strings.Repeat("x", 1<<16)
	for i := 0; i < 4*sendBufferSize; i++ {
		hub.Broadcast(EventPairInfo, filler)
		if hub.SubscriberCount() == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond, "the stalled subscriber should be evicted")

	// the draining subscriber survived and keeps receiving
	hub.Broadcast(EventPairExtra, TickerResult{HighPrice: "1"})

	assert.Eventually(t, func() bool {
		for {
			select {
			case eventType := <-received:
				if eventType == EventPairExtra {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond, "the surviving subscriber should still be served")
}

func TestHub_UntrackedSelectionPushesNothing(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), newTestStorage(t), 5)
	server := newHubServer(t, hub)
	defer server.Close()

	sub := dialSubscriber(t, server)
	defer sub.Close()

	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.SetSelection("dogeusdt")
	hub.BookUpdated("btcusdt")

	expectSilence(t, sub)
}
