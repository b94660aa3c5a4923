package domain

// SyncAPI is the one-shot snapshot side of the upstream exchange.
type SyncAPI interface {
	OrderBookSnapshot(pair Pair, limit int) (*OrderBookSnapshot, error)
}

// StreamAPI is the push side of the upstream exchange: decoded diff and
// ticker event streams over the multiplexed feed connection.
type StreamAPI interface {
	DepthDiffStream(pair Pair) (*Subscription[*DepthUpdate], error)
	TickerStream(pair Pair) (*Subscription[*TickerUpdate], error)
}
