package domain

import (
	"fmt"
	"strings"
)

// Pair is a trading pair identifier in the upstream's compact lower-case
// form, e.g. "btcusdt".
type Pair string

func NewPair(s string) (Pair, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("pair must not be empty")
	}

	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("invalid pair %q", s)
		}
	}

	return Pair(s), nil
}

func (p Pair) String() string {
	return string(p)
}

// Symbol is the upper-case form expected by the snapshot REST API.
func (p Pair) Symbol() string {
	return strings.ToUpper(string(p))
}

func (p Pair) DepthTopic() string {
	return fmt.Sprintf("%s@depth", p)
}

func (p Pair) TickerTopic() string {
	return fmt.Sprintf("%s@ticker", p)
}
