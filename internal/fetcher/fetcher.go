package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"geofleet-sync/internal/models"
)

// ErrNetwork marks failures where the positions endpoint could not be
// reached at all, as opposed to a negative or malformed response. The
// orchestrator uses it to classify a fully failed cycle as a
// connectivity problem.
var ErrNetwork = errors.New("network error")

const requestTimeout = 30 * time.Second

// Client fetches vehicle positions from the configured REST endpoint.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// New creates a fetcher client with fixed 30s connect/read timeouts.
func New(baseURL, token string) *Client {
	return &Client{
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: requestTimeout,
				}).DialContext,
				TLSHandshakeTimeout:   requestTimeout,
				ResponseHeaderTimeout: requestTimeout,
			},
		},
		baseURL: baseURL,
		token:   token,
	}
}

// Result is the outcome of one per-vehicle request. Exactly one of
// Position and Err is set.
type Result struct {
	VehicleID string
	Position  *models.VehiclePosition
	Err       error
}

// OK reports whether the fetch produced a usable position.
func (r Result) OK() bool {
	return r.Err == nil && r.Position != nil
}

// FetchPositions issues one GET per vehicle id concurrently and returns
// one Result per id, in input order, failures included. A failing vehicle
// never aborts the batch; there is no retry within a batch.
func (c *Client) FetchPositions(ctx context.Context, ids []string) []Result {
	results := make([]Result, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			pos, err := c.fetchOne(ctx, id)
			results[i] = Result{VehicleID: id, Position: pos, Err: err}
		}(i, id)
	}
	wg.Wait()

	return results
}

// fetchOne requests a single vehicle's position.
func (c *Client) fetchOne(ctx context.Context, id string) (*models.VehiclePosition, error) {
	url := fmt.Sprintf("%s/vehicle/%s", c.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", id, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrNetwork, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d for vehicle %s", resp.StatusCode, id)
	}

	var pos models.VehiclePosition
	if err := json.NewDecoder(resp.Body).Decode(&pos); err != nil {
		return nil, fmt.Errorf("decoding position for %s: %w", id, err)
	}

	pos.VehicleID = id
	if pos.Timestamp == 0 {
		pos.Timestamp = models.NowMillis()
	}

	log.WithFields(log.Fields{
		"vehicle":   id,
		"latitude":  pos.Latitude,
		"longitude": pos.Longitude,
	}).Debug("fetched position")

	return &pos, nil
}
