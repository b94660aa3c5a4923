package domain

import "errors"

// ErrSnapshotUnavailable marks a failed or unparseable depth snapshot
// request. Streaming for the pair must not start until a snapshot succeeds.
var ErrSnapshotUnavailable = errors.New("order book snapshot unavailable")

// OrderBookSnapshot is the wire shape of a full depth snapshot and of
// top-of-book projections.
type OrderBookSnapshot struct {
	LastUpdateId int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// DepthUpdate is one diff event: the price level changes collapsed into the
// update id range [FirstUpdateID, FinalUpdateID].
type DepthUpdate struct {
	Pair          Pair
	FirstUpdateID int64
	FinalUpdateID int64
	Bids          [][]string
	Asks          [][]string
}

func NewDepthUpdate(pair Pair, firstUpdateID, finalUpdateID int64, bids, asks [][]string) *DepthUpdate {
	return &DepthUpdate{
		Pair:          pair,
		FirstUpdateID: firstUpdateID,
		FinalUpdateID: finalUpdateID,
		Bids:          bids,
		Asks:          asks,
	}
}

// TickerUpdate carries 24h ticker statistics. It is independent of book
// sequencing and is passed through to subscribers without merging.
type TickerUpdate struct {
	Pair        Pair
	Topic       string
	HighPrice   string
	LowPrice    string
	PriceChange string
	Volume      string
}
