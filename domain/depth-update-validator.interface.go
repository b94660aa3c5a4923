package domain

import "errors"

var (
	// Registered and counted; the update is still applied (availability
	// over strict consistency).
	ErrOrderBookUpdateIsOutOfSequence = errors.New("order book update is out of sequence")
	// Skipped silently.
	ErrOrderBookUpdateIsOutdated = errors.New("order book update is outdated")
)

type DepthUpdateValidator interface {
	// IsValidUpd returns nil when the update advances the book cleanly.
	IsValidUpd(update *DepthUpdate, orderBookLastUpdID int64) error
	IsErrOutOfSequence(err error) bool
	IsErrOutdated(err error) bool
}
