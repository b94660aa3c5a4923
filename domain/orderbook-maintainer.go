package domain

import (
	"sync"
	"time"

	"github.com/gammazero/deque"

	promclient "github.com/obmirror/go-orderbook-mirror/infrastructure/prometheus"
)

// Updates buffered before the snapshot arrives are admitted after this
// long even if the stream stays quiet, so a dead topic cannot stall
// bootstrap forever.
const firstUpdateGrace = 3 * time.Second

// BroadcastSink is notified after every successfully applied depth
// update. The merge path itself never talks to subscribers.
type BroadcastSink interface {
	BookUpdated(pair Pair)
}

// OrderbookMaintainer owns the sync lifecycle of one pair's book: it
// subscribes to the diff stream, buffers updates while the snapshot
// request is in flight, then drains the queue serially, applying diffs
// in arrival order.
type OrderbookMaintainer struct {
	pair      Pair
	syncAPI   SyncAPI
	streamAPI StreamAPI
	validator DepthUpdateValidator
	sink      BroadcastSink

	orderBook    *OrderBook
	subscription *Subscription[*DepthUpdate]

	mu               sync.Mutex
	depthUpdateQueue deque.Deque[*DepthUpdate]
	wakeup           chan struct{}
	done             chan struct{}
	stopOnce         sync.Once

	// out-of-sequence updates seen so far (applied anyway)
	GapCount int
}

func NewOrderBookMaintainer(
	pair Pair,
	stream StreamAPI,
	syncAPI SyncAPI,
	validator DepthUpdateValidator,
	sink BroadcastSink,
) *OrderbookMaintainer {
	return &OrderbookMaintainer{
		pair:      pair,
		syncAPI:   syncAPI,
		streamAPI: stream,
		validator: validator,
		sink:      sink,

		wakeup: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Sync bootstraps the book. The diff stream is subscribed before the
// snapshot request goes out so no update in between is lost; buffered
// updates already covered by the snapshot are dropped by the stale
// check during the drain.
func (m *OrderbookMaintainer) Sync(snapshotDepth int) (*OrderBook, error) {
	onFirstUpdate, subscription, err := m.runStreamSubscriber()
	if err != nil {
		return nil, err
	}
	m.subscription = subscription

	select {
	case <-onFirstUpdate:
	case <-time.After(firstUpdateGrace):
	}

	snapshot, err := m.syncAPI.OrderBookSnapshot(m.pair, snapshotDepth)
	if err != nil {
		m.Stop()
		return nil, err
	}

	orderBook, err := NewOrderBook(m.pair, snapshot)
	if err != nil {
		m.Stop()
		return nil, err
	}

	m.orderBook = orderBook
	go m.queueReader()

	logger.Printf("order book for %s synced at sequence %d", m.pair, orderBook.LastUpdateID())
	return orderBook, nil
}

func (m *OrderbookMaintainer) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		if m.subscription != nil {
			m.subscription.Unsubscribe()
		}
	})
}

func (m *OrderbookMaintainer) runStreamSubscriber() (<-chan struct{}, *Subscription[*DepthUpdate], error) {
	subscription, err := m.streamAPI.DepthDiffStream(m.pair)
	if err != nil {
		return nil, nil, err
	}

	onFirstUpdate := make(chan struct{})
	var firstUpdate sync.Once

	go func() {
		for {
			select {
			case <-m.done:
				return
			case update, ok := <-subscription.Stream:
				if !ok {
					return
				}

				m.mu.Lock()
				m.depthUpdateQueue.PushBack(update)
				m.mu.Unlock()

				firstUpdate.Do(func() { close(onFirstUpdate) })

				select {
				case m.wakeup <- struct{}{}:
				default:
				}
			}
		}
	}()

	return onFirstUpdate, subscription, nil
}

func (m *OrderbookMaintainer) queueReader() {
	for {
		update := m.popFront()
		if update == nil {
			select {
			case <-m.done:
				return
			case <-m.wakeup:
				continue
			}
		}

		m.processUpdate(update)
	}
}

func (m *OrderbookMaintainer) popFront() *DepthUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.depthUpdateQueue.Len() == 0 {
		return nil
	}

	return m.depthUpdateQueue.PopFront()
}

func (m *OrderbookMaintainer) processUpdate(update *DepthUpdate) {
	err := m.validator.IsValidUpd(update, m.orderBook.LastUpdateID())
	switch {
	case err == nil:
	case m.validator.IsErrOutdated(err):
		promclient.DepthUpdatesStale.Inc()
		return
	case m.validator.IsErrOutOfSequence(err):
		// applied anyway: availability over strict consistency
		m.GapCount++
		promclient.DepthUpdateGaps.Inc()
		logger.Printf("gap in depth stream for %s: book at %d, update covers [%d, %d]",
			m.pair, m.orderBook.LastUpdateID(), update.FirstUpdateID, update.FinalUpdateID)
	}

	applied, err := m.orderBook.ApplyUpdate(update)
	if err != nil {
		logger.Printf("dropping malformed depth update for %s: %v", m.pair, err)
		return
	}

	if applied {
		promclient.DepthUpdatesApplied.Inc()
		if m.sink != nil {
			m.sink.BookUpdated(m.pair)
		}
	}
}
