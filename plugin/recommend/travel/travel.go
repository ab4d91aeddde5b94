// Package travel resolves travel times between the user and candidate
// facilities. Providers are best-effort: a missing or failed route yields a
// nil leg and the base score degrades instead of the request failing.
package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/carelink/medirank/plugin/recommend"
)

// Provider resolves a single origin/destination travel leg. A nil leg with
// a nil error means the provider had no route.
type Provider interface {
	Route(ctx context.Context, origin, destination recommend.LatLng) (*recommend.TravelLeg, error)
}

// Config holds the directions client configuration.
type Config struct {
	// BaseURL is the directions endpoint (e.g. http://localhost:5000/route).
	BaseURL string
	// APIKey is sent as the "key" query parameter when set.
	APIKey string
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
	// MaxInFlight bounds concurrent route lookups per batch.
	MaxInFlight int64
}

// DefaultConfig returns the default directions client configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:     5 * time.Second,
		MaxInFlight: 8,
	}
}

// Client is an HTTP directions-service provider.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a directions client.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		return nil, errors.New("directions base URL is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = 8
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// routeResponse is the directions service payload.
type routeResponse struct {
	DurationSeconds int64   `json:"duration_seconds"`
	DistanceKm      float64 `json:"distance_km"`
	NoRoute         bool    `json:"no_route,omitempty"`
}

// Route queries the directions service for one leg.
func (c *Client) Route(ctx context.Context, origin, destination recommend.LatLng) (*recommend.TravelLeg, error) {
	query := url.Values{}
	query.Set("origin", fmt.Sprintf("%f,%f", origin.Latitude, origin.Longitude))
	query.Set("destination", fmt.Sprintf("%f,%f", destination.Latitude, destination.Longitude))
	if c.config.APIKey != "" {
		query.Set("key", c.config.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build directions request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "directions request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("directions service returned %d: %s", resp.StatusCode, string(body))
	}

	var route routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&route); err != nil {
		return nil, errors.Wrap(err, "failed to decode directions response")
	}
	if route.NoRoute {
		return nil, nil
	}

	return &recommend.TravelLeg{
		Seconds:    route.DurationSeconds,
		DistanceKm: route.DistanceKm,
	}, nil
}

// Resolve fills Candidate.Travel for every facility candidate with bounded
// parallelism. Failures and missing routes leave the leg nil; the request
// continues with degraded base scores.
func Resolve(ctx context.Context, provider Provider, origin *recommend.LatLng, candidates []*recommend.Candidate, maxInFlight int64) {
	if provider == nil || origin == nil {
		return
	}
	if maxInFlight <= 0 {
		maxInFlight = 8
	}

	sem := semaphore.NewWeighted(maxInFlight)
	var wg sync.WaitGroup

	for _, candidate := range candidates {
		if candidate.Entry == nil || (candidate.Entry.Latitude == 0 && candidate.Entry.Longitude == 0) {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(candidate *recommend.Candidate) {
			defer wg.Done()
			defer sem.Release(1)

			leg, err := provider.Route(ctx, *origin, recommend.LatLng{
				Latitude:  candidate.Entry.Latitude,
				Longitude: candidate.Entry.Longitude,
			})
			if err != nil {
				return
			}
			candidate.Travel = leg
		}(candidate)
	}

	wg.Wait()
}
