package domain

import (
	"errors"
	"log"
	"os"
	"sort"
	"sync"
)

var logger = log.New(os.Stdout, "[orderbook-storage] ", log.LstdFlags)

var (
	ErrOrderBookNotFound      = errors.New("order book not found")
	ErrOrderBookAlreadyExists = errors.New("order book already exists")
)

// OrderBookStorage is the owned registry of pair -> book. A book is
// installed exactly once at bootstrap and never removed while the
// process runs.
type OrderBookStorage struct {
	mu      sync.RWMutex
	storage map[Pair]*OrderBook
}

func NewOrderBookStorage() *OrderBookStorage {
	return &OrderBookStorage{
		storage: make(map[Pair]*OrderBook),
	}
}

func (o *OrderBookStorage) Add(pair Pair, orderBook *OrderBook) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.storage[pair]; ok {
		logger.Printf("refusing to replace order book for %s", pair)
		return ErrOrderBookAlreadyExists
	}

	o.storage[pair] = orderBook
	return nil
}

func (o *OrderBookStorage) Get(pair Pair) (*OrderBook, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	orderBook, ok := o.storage[pair]
	if !ok {
		return nil, ErrOrderBookNotFound
	}

	return orderBook, nil
}

func (o *OrderBookStorage) Pairs() []Pair {
	o.mu.RLock()
	defer o.mu.RUnlock()

	pairs := make([]Pair, 0, len(o.storage))
	for pair := range o.storage {
		pairs = append(pairs, pair)
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i] < pairs[j] })
	return pairs
}

func (o *OrderBookStorage) OrderBookCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return len(o.storage)
}
