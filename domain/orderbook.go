package domain

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a resting quantity at a price.
type PriceLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// side maps the canonical decimal string of a price to its level, so
// "1.50" and "1.5" collapse into one entry. A zero quantity is never
// stored; it means the level is deleted.
type side map[string]PriceLevel

// OrderBook is the authoritative in-memory replica of one pair's book:
// a sequence cursor plus a price level map per side. It is mutated only
// by the merge path and read through copy-out accessors.
type OrderBook struct {
	Pair Pair

	mu             sync.RWMutex
	bids           side
	asks           side
	lastUpdateID   int64
	lastUpdateTime int64
}

func NewOrderBook(pair Pair, snapshot *OrderBookSnapshot) (*OrderBook, error) {
	bids, err := parsePriceLevels(snapshot.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := parsePriceLevels(snapshot.Asks)
	if err != nil {
		return nil, err
	}

	ob := &OrderBook{
		Pair:           pair,
		bids:           make(side),
		asks:           make(side),
		lastUpdateID:   snapshot.LastUpdateId,
		lastUpdateTime: time.Now().Unix(),
	}

	ob.bids.merge(bids)
	ob.asks.merge(asks)

	return ob, nil
}

// ApplyUpdate merges one diff event into the book. A stale event
// (FinalUpdateID <= current sequence) leaves the book unchanged and
// returns false. Otherwise every changed level is upserted (qty > 0) or
// removed (qty == 0) and the sequence cursor advances to FinalUpdateID.
func (ob *OrderBook) ApplyUpdate(update *DepthUpdate) (bool, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if update.FinalUpdateID <= ob.lastUpdateID {
		return false, nil
	}

	// both sides parse before either map changes, so a malformed level
	// cannot leave a half-applied diff behind
	bids, err := parsePriceLevels(update.Bids)
	if err != nil {
		return false, err
	}
	asks, err := parsePriceLevels(update.Asks)
	if err != nil {
		return false, err
	}

	ob.bids.merge(bids)
	ob.asks.merge(asks)

	ob.lastUpdateID = update.FinalUpdateID
	ob.lastUpdateTime = time.Now().Unix()

	return true, nil
}

func (ob *OrderBook) LastUpdateID() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return ob.lastUpdateID
}

// Depth reports the number of resting levels per side.
func (ob *OrderBook) Depth() (bids int, asks int) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return len(ob.bids), len(ob.asks)
}

// TopOfBook projects the best levels of each side without mutating the
// book: bids descending, asks ascending by price, truncated to depth
// entries per side. Prices are unique per side so the order is total.
func (ob *OrderBook) TopOfBook(depth int) *OrderBookSnapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bids := ob.bids.sorted(func(a, b PriceLevel) bool {
		return a.Price.GreaterThan(b.Price)
	})
	asks := ob.asks.sorted(func(a, b PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})

	return &OrderBookSnapshot{
		LastUpdateId: ob.lastUpdateID,
		Bids:         serializePriceLevels(limitDepth(bids, depth)),
		Asks:         serializePriceLevels(limitDepth(asks, depth)),
	}
}

func parsePriceLevels(levels [][]string) ([]PriceLevel, error) {
	parsed := make([]PriceLevel, 0, len(levels))

	for _, level := range levels {
		if len(level) != 2 {
			return nil, fmt.Errorf("malformed price level %v", level)
		}

		price, err := decimal.NewFromString(level[0])
		if err != nil {
			return nil, fmt.Errorf("malformed price %q: %w", level[0], err)
		}

		qty, err := decimal.NewFromString(level[1])
		if err != nil {
			return nil, fmt.Errorf("malformed quantity %q: %w", level[1], err)
		}

		parsed = append(parsed, PriceLevel{Price: price, Qty: qty})
	}

	return parsed, nil
}

func (s side) merge(levels []PriceLevel) {
	for _, level := range levels {
		key := level.Price.String()

		if level.Qty.IsZero() {
			// absence is not an error
			delete(s, key)
			continue
		}

		s[key] = level
	}
}

func (s side) sorted(less func(a, b PriceLevel) bool) []PriceLevel {
	levels := make([]PriceLevel, 0, len(s))
	for _, level := range s {
		levels = append(levels, level)
	}

	sort.Slice(levels, func(i, j int) bool {
		return less(levels[i], levels[j])
	})

	return levels
}

func limitDepth(levels []PriceLevel, limit int) []PriceLevel {
	if limit > 0 && len(levels) > limit {
		return levels[:limit]
	}

	return levels
}

func serializePriceLevels(levels []PriceLevel) [][]string {
	result := make([][]string, len(levels))
	for i, level := range levels {
		result[i] = []string{level.Price.String(), level.Qty.String()}
	}

	return result
}
