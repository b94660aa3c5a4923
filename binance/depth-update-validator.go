package binance

import (
	"errors"

	"github.com/obmirror/go-orderbook-mirror/domain"
)

type DepthUpdateValidator struct{}

func (v *DepthUpdateValidator) IsValidUpd(update *domain.DepthUpdate, orderBookLastUpdID int64) error {
	// Drop any event where u is <= lastUpdateId of the book
	if update.FinalUpdateID <= orderBookLastUpdID {
		return domain.ErrOrderBookUpdateIsOutdated
	}

	// A clean continuation has U <= lastUpdateId+1 AND u >= lastUpdateId+1
	if update.FirstUpdateID <= orderBookLastUpdID+1 && update.FinalUpdateID >= orderBookLastUpdID+1 {
		return nil
	}

	if update.FirstUpdateID > orderBookLastUpdID+1 {
		return domain.ErrOrderBookUpdateIsOutOfSequence
	}

	return nil
}

func (v *DepthUpdateValidator) IsErrOutOfSequence(err error) bool {
	return errors.Is(err, domain.ErrOrderBookUpdateIsOutOfSequence)
}

func (v *DepthUpdateValidator) IsErrOutdated(err error) bool {
	return errors.Is(err, domain.ErrOrderBookUpdateIsOutdated)
}
