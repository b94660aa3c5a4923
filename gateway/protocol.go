package gateway

import (
	"encoding/json"
	"fmt"
)

// Every downstream message is a two element JSON array [eventType, payload].
const (
	EventPairInfo  = "pair-info"
	EventPairExtra = "pair-extra"
	EventPairToken = "pair-token"
)

type BookResult struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

type PairInfoPayload struct {
	Result BookResult `json:"result"`
}

type TickerResult struct {
	HighPrice   string `json:"high_price"`
	LowPrice    string `json:"low_price"`
	PriceChange string `json:"price_change"`
	Volume      string `json:"volume"`
}

type PairExtraPayload struct {
	Result TickerResult `json:"result"`
}

func encodeEnvelope(eventType string, payload interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{eventType, payload})
}

func decodeEnvelope(raw []byte) (string, json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", nil, err
	}

	if len(parts) != 2 {
		return "", nil, fmt.Errorf("envelope must have exactly two elements, got %d", len(parts))
	}

	var eventType string
	if err := json.Unmarshal(parts[0], &eventType); err != nil {
		return "", nil, err
	}

	return eventType, parts[1], nil
}
