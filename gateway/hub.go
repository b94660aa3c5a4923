package gateway

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/obmirror/go-orderbook-mirror/domain"
	promclient "github.com/obmirror/go-orderbook-mirror/infrastructure/prometheus"
)

// A slow consumer whose buffer fills up is evicted rather than blocking
// the broadcast path.
const sendBufferSize = 64

// Client is one websocket subscriber. Owned exclusively by the Hub.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

// close is idempotent. The send channel is never closed so a broadcast
// racing with an eviction cannot panic; the write pump exits via done.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub routes projections and ticker events to connected subscribers.
// Pair selection is a single process-wide cell shared by all
// subscribers: the most recent ["pair-token", pair] message from any of
// them decides what every one of them receives.
type Hub struct {
	logger *zap.Logger
	books  *domain.OrderBookStorage
	depth  int

	mu           sync.Mutex
	clients      map[string]*Client
	selectedPair domain.Pair
}

func NewHub(logger *zap.Logger, books *domain.OrderBookStorage, projectionDepth int) *Hub {
	return &Hub{
		logger:  logger,
		books:   books,
		depth:   projectionDepth,
		clients: make(map[string]*Client),
	}
}

// Register adopts an upgraded connection and starts its pumps.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	promclient.ConnectedSubscribers.Inc()
	h.logger.Info("subscriber connected", zap.String("client", client.id))

	go client.writePump()
	go h.readPump(client)

	return client
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.id]
	delete(h.clients, client.id)
	h.mu.Unlock()

	if ok {
		promclient.ConnectedSubscribers.Dec()
		h.logger.Info("subscriber disconnected", zap.String("client", client.id))
	}

	client.close()
}

func (h *Hub) Selection() domain.Pair {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.selectedPair
}

// SetSelection overwrites the shared selection; last write wins.
func (h *Hub) SetSelection(pair domain.Pair) {
	h.mu.Lock()
	h.selectedPair = pair
	h.mu.Unlock()

	h.logger.Info("pair selected", zap.String("pair", pair.String()))
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// BookUpdated implements domain.BroadcastSink. The projection is always
// taken from the pair in the shared selection, which may differ from
// the pair that just merged.
func (h *Hub) BookUpdated(pair domain.Pair) {
	selected := h.Selection()
	if selected == "" {
		return
	}

	book, err := h.books.Get(selected)
	if err != nil {
		h.logger.Debug("selection points at untracked pair",
			zap.String("selected", selected.String()))
		return
	}

	projection := book.TopOfBook(h.depth)
	h.Broadcast(EventPairInfo, PairInfoPayload{
		Result: BookResult{
			Bids: projection.Bids,
			Asks: projection.Asks,
		},
	})
}

// TickerUpdated pushes ticker statistics when the ticker's stream topic
// contains the shared selection.
func (h *Hub) TickerUpdated(ticker *domain.TickerUpdate) {
	selected := h.Selection()
	if selected == "" {
		return
	}

	if !strings.Contains(strings.ToLower(ticker.Topic), selected.String()) {
		return
	}

	h.Broadcast(EventPairExtra, PairExtraPayload{
		Result: TickerResult{
			HighPrice:   ticker.HighPrice,
			LowPrice:    ticker.LowPrice,
			PriceChange: ticker.PriceChange,
			Volume:      ticker.Volume,
		},
	})
}

// Broadcast pushes one envelope to every connected subscriber. A push
// that cannot be buffered evicts that subscriber and nobody else.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	msg, err := encodeEnvelope(eventType, payload)
	if err != nil {
		h.logger.Error("failed to encode envelope", zap.String("event", eventType), zap.Error(err))
		return
	}

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		select {
		case client.send <- msg:
			promclient.SubscriberPushes.Inc()
		default:
			promclient.SubscriberPushFailures.Inc()
			h.logger.Warn("evicting slow subscriber", zap.String("client", client.id))
			h.unregister(client)
		}
	}
}

func (h *Hub) readPump(client *Client) {
	defer h.unregister(client)

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		eventType, payload, err := decodeEnvelope(raw)
		if err != nil {
			h.logger.Debug("ignoring malformed client message",
				zap.String("client", client.id), zap.Error(err))
			continue
		}

		if eventType != EventPairToken {
			continue
		}

		var token string
		if err := json.Unmarshal(payload, &token); err != nil {
			h.logger.Debug("ignoring malformed pair token",
				zap.String("client", client.id), zap.Error(err))
			continue
		}

		pair, err := domain.NewPair(token)
		if err != nil {
			h.logger.Debug("ignoring invalid pair token",
				zap.String("client", client.id), zap.Error(err))
			continue
		}

		h.SetSelection(pair)
	}
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				// read pump notices the closed conn and unregisters
				c.close()
				return
			}
		}
	}
}
