package domain

// Subscription is a handle on one stream of feed events. Done is
// closed when the subscription is released; no further events arrive
// after that.
type Subscription[T any] struct {
	Stream      chan T
	Done        <-chan struct{}
	Unsubscribe func()
	Topic       string
}
