package binance

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/obmirror/go-orderbook-mirror/domain"
)

var logger = log.New(log.Writer(), "[binance] ", log.LstdFlags)

// SyncAPI fetches full depth snapshots over the exchange REST API.
type SyncAPI struct {
	endpoint string
	client   *http.Client
}

func NewSyncAPI(endpoint string) *SyncAPI {
	return &SyncAPI{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// OrderBookSnapshot requests a point-in-time depth snapshot of the pair,
// limited to the given number of levels per side. Any transport or parse
// failure surfaces as domain.ErrSnapshotUnavailable.
func (api *SyncAPI) OrderBookSnapshot(pair domain.Pair, limit int) (*domain.OrderBookSnapshot, error) {
	url := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d", api.endpoint, pair.Symbol(), limit)

	resp, err := api.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSnapshotUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", domain.ErrSnapshotUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSnapshotUnavailable, err)
	}

	var snapshot domain.OrderBookSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSnapshotUnavailable, err)
	}

	return &snapshot, nil
}
