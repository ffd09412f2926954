// Package ors provides an OpenRouteService-compatible geocoding client.
package ors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/routetrack/routetrack/internal/geo"
	"github.com/routetrack/routetrack/internal/geocode"
	"github.com/routetrack/routetrack/internal/provider/resilience"
)

const (
	// ProviderName identifies this geocoding provider.
	ProviderName = "openrouteservice-geocode"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the geocoding client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// CountryCode restricts results to one country (optional, e.g. "GB").
	CountryCode string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an ORS geocoding client.
type Client struct {
	apiKey      string
	baseURL     string
	countryCode string
	httpClient  HTTPDoer
	logger      zerolog.Logger
}

// NewClient creates a new geocoding client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		if cfg.Registry != nil {
			clientCfg.Registry = cfg.Registry
		}
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		countryCode: cfg.CountryCode,
		httpClient:  httpClient,
		logger:      cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// searchResponse is the GeoJSON shape of /geocode/search results.
type searchResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Resolve looks up the single best coordinate for a postcode token.
func (c *Client) Resolve(ctx context.Context, postcode string) (geo.Coordinate, error) {
	endpoint := c.baseURL + "/geocode/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("creating request: %w", err)
	}

	q := req.URL.Query()
	q.Set("text", postcode)
	q.Set("size", "1")
	if c.countryCode != "" {
		q.Set("boundary.country", c.countryCode)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json, application/geo+json")

	c.logger.Debug().Str("postcode", postcode).Msg("requesting geocode from ORS")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return geo.Coordinate{}, &geocode.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach geocoding provider",
			Err:      geocode.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return geo.Coordinate{}, &geocode.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  fmt.Sprintf("geocoding provider returned status %d", resp.StatusCode),
			Err:      geocode.ErrProviderUnavailable,
		}
	}

	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return geo.Coordinate{}, fmt.Errorf("decoding response: %w", err)
	}

	if len(decoded.Features) == 0 {
		return geo.Coordinate{}, &geocode.Error{
			Provider: ProviderName,
			Code:     "NO_MATCH",
			Message:  fmt.Sprintf("no geocode result for %q", postcode),
			Err:      geocode.ErrNoMatch,
		}
	}

	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) != 2 {
		return geo.Coordinate{}, &geocode.Error{
			Provider: ProviderName,
			Code:     "BAD_GEOMETRY",
			Message:  fmt.Sprintf("invalid coordinate format for %q", postcode),
			Err:      geocode.ErrNoMatch,
		}
	}

	// GeoJSON order is [lon, lat].
	return geo.Coordinate{Lon: coords[0], Lat: coords[1]}, nil
}
