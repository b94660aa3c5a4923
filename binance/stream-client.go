package binance

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/recws-org/recws"

	"github.com/obmirror/go-orderbook-mirror/domain"
)

const pingDelay = time.Minute * 9

// Message is the multiplexed feed envelope.
type Message[T any] struct {
	Stream string `json:"stream"`
	Data   T      `json:"data"`
}

type SubscriptionEntry struct {
	ch              chan []byte
	done            chan struct{}
	subscriberCount int
}

type WebSocketRequestModel struct {
	ReqId  int      `json:"id"`
	Params []string `json:"params"`
	Method string   `json:"method"`
}

// StreamClient holds one reconnecting connection to the multiplexed
// stream endpoint and dispatches raw frames to per-topic channels.
type StreamClient struct {
	endpoint      string
	conn          *recws.RecConn
	subscriptions map[string]*SubscriptionEntry
	mu            sync.Mutex
}

type SubscribeResult = *domain.Subscription[[]byte]

func NewStreamClient(endpoint string) *StreamClient {
	return &StreamClient{
		endpoint:      endpoint,
		conn:          nil,
		subscriptions: make(map[string]*SubscriptionEntry),
		mu:            sync.Mutex{},
	}
}

func (c *StreamClient) Connect() error {
	conn := &recws.RecConn{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 5 * time.Second,
		KeepAliveTimeout: pingDelay,
		Conn:             nil,
		NonVerbose:       false,
	}

	conn.Dial(c.endpoint, nil)

	c.conn = conn

	go c.read()
	return nil
}

func (c *StreamClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// WaitConnected blocks until the background dial succeeds or the
// timeout elapses. recws dials asynchronously and a Subscribe while
// disconnected fails its write.
func (c *StreamClient) WaitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for !c.IsConnected() {
		if time.Now().After(deadline) {
			return fmt.Errorf("feed connection to %s not established within %s", c.endpoint, timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}

	return nil
}

func (c *StreamClient) Subscribe(topic string) (SubscribeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.subscriptions[topic]

	if ok {
		entry.subscriberCount++
	} else {
		entry = &SubscriptionEntry{
			ch:              make(chan []byte),
			done:            make(chan struct{}),
			subscriberCount: 1,
		}
		c.subscriptions[topic] = entry

		logger.Println("subscribing to the ", topic)

		err := c.conn.WriteJSON(WebSocketRequestModel{
			Method: "SUBSCRIBE",
			ReqId:  getRandomReqID(),
			Params: []string{topic},
		})

		if err != nil {
			delete(c.subscriptions, topic)
			return nil, fmt.Errorf("failed to send subscribe msg for topic=%s", topic)
		}
	}

	return &domain.Subscription[[]byte]{
		Stream: entry.ch,
		Done:   entry.done,
		Unsubscribe: func() {
			c.unSubscribe(topic)
		},
		Topic: topic,
	}, nil
}

func (c *StreamClient) unSubscribe(topic string) error {
	logger.Println("unsubscribing from topic ", topic)
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.subscriptions[topic]
	if !ok {
		return nil
	}

	if entry.subscriberCount > 1 {
		entry.subscriberCount -= 1
		return nil
	}

	// releases any sender blocked on the channel; the channel itself
	// is never closed, so the read loop cannot panic mid-send
	close(entry.done)
	delete(c.subscriptions, topic)

	err := c.conn.WriteJSON(WebSocketRequestModel{
		Method: "UNSUBSCRIBE",
		ReqId:  getRandomReqID(),
		Params: []string{topic},
	})

	if err != nil {
		return err
	}

	return nil
}

func (c *StreamClient) Close() error {
	return c.conn.Conn.Close()
}

func (c *StreamClient) read() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			logger.Printf("error while reading from feed connection: %v", err)
			continue
		}

		var envelope struct {
			Stream string `json:"stream"`
			ReqId  *int   `json:"id"`
		}

		if err := json.Unmarshal(msg, &envelope); err != nil {
			logger.Printf("skipping unparseable frame: %v", err)
			continue
		}

		// frames with an id are subscription acks
		if envelope.ReqId != nil {
			continue
		}

		if envelope.Stream == "" {
			continue
		}

		c.mu.Lock()
		entry, ok := c.subscriptions[envelope.Stream]
		c.mu.Unlock()
		if ok {
			select {
			case entry.ch <- msg:
			case <-entry.done:
			}
		}
	}
}

func getRandomReqID() int {
	min := 10000
	max := 9999999
	return min + rand.Intn(max-min)
}
