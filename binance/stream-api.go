package binance

import (
	"encoding/json"

	"github.com/obmirror/go-orderbook-mirror/domain"
)

// StreamAPI decodes raw multiplexed frames into typed domain events.
type StreamAPI struct {
	streamClient *StreamClient
}

type DepthUpdateData struct {
	Event         string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateId int64      `json:"U"`
	FinalUpdateId int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

type TickerData struct {
	Event       string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	PriceChange string `json:"p"`
	HighPrice   string `json:"h"`
	LowPrice    string `json:"l"`
	Volume      string `json:"v"`
}

func NewStreamAPI(client *StreamClient) *StreamAPI {
	return &StreamAPI{
		streamClient: client,
	}
}

func (bs *StreamAPI) DepthDiffStream(pair domain.Pair) (*domain.Subscription[*domain.DepthUpdate], error) {
	topic := pair.DepthTopic()
	subscription, err := bs.streamClient.Subscribe(topic)
	if err != nil {
		return nil, err
	}

	s := make(chan *domain.DepthUpdate)

	go func() {
		defer close(s)

		for {
			var msg []byte
			select {
			case <-subscription.Done:
				return
			case msg = <-subscription.Stream:
			}

			var message Message[DepthUpdateData]
			if err := json.Unmarshal(msg, &message); err != nil {
				logger.Printf("skipping malformed depth frame on %s: %v", topic, err)
				continue
			}

			update := domain.NewDepthUpdate(
				pair,
				message.Data.FirstUpdateId, message.Data.FinalUpdateId,
				message.Data.Bids, message.Data.Asks,
			)

			select {
			case s <- update:
			case <-subscription.Done:
				return
			}
		}
	}()

	return &domain.Subscription[*domain.DepthUpdate]{
		Stream:      s,
		Done:        subscription.Done,
		Unsubscribe: subscription.Unsubscribe,
		Topic:       topic,
	}, nil
}

func (bs *StreamAPI) TickerStream(pair domain.Pair) (*domain.Subscription[*domain.TickerUpdate], error) {
	topic := pair.TickerTopic()
	subscription, err := bs.streamClient.Subscribe(topic)
	if err != nil {
		return nil, err
	}

	s := make(chan *domain.TickerUpdate)

	go func() {
		defer close(s)

		for {
			var msg []byte
			select {
			case <-subscription.Done:
				return
			case msg = <-subscription.Stream:
			}

			var message Message[TickerData]
			if err := json.Unmarshal(msg, &message); err != nil {
				logger.Printf("skipping malformed ticker frame on %s: %v", topic, err)
				continue
			}

			ticker := &domain.TickerUpdate{
				Pair:        pair,
				Topic:       message.Stream,
				HighPrice:   message.Data.HighPrice,
				LowPrice:    message.Data.LowPrice,
				PriceChange: message.Data.PriceChange,
				Volume:      message.Data.Volume,
			}

			select {
			case s <- ticker:
			case <-subscription.Done:
				return
			}
		}
	}()

	return &domain.Subscription[*domain.TickerUpdate]{
		Stream:      s,
		Done:        subscription.Done,
		Unsubscribe: subscription.Unsubscribe,
		Topic:       topic,
	}, nil
}
