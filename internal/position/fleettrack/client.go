// Package fleettrack provides a client for the FleetTrack vehicle telemetry API.
package fleettrack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/routetrack/routetrack/internal/geo"
	"github.com/routetrack/routetrack/internal/position"
	"github.com/routetrack/routetrack/internal/provider/resilience"
)

const (
	// ProviderName identifies this telemetry provider.
	ProviderName = "fleettrack"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 8 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the FleetTrack client.
type ClientConfig struct {
	// APIKey authenticates against the telemetry API (required).
	APIKey string

	// BaseURL is the API base URL (required).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 8s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a FleetTrack API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new FleetTrack client.
func NewClient(cfg ClientConfig) *Client {
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
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// apiSnapshot is the wire format of a position sample.
type apiSnapshot struct {
	VehicleID string   `json:"vehicle_id"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	SpeedKph  *float64 `json:"speed_kph"`
	Heading   *float64 `json:"heading"`
	Timestamp string   `json:"timestamp"`
}

// Position retrieves the current position of a vehicle.
func (c *Client) Position(ctx context.Context, vehicleID string) (*position.VehicleSnapshot, error) {
	if vehicleID == "" {
		return nil, &position.Error{
			Provider: ProviderName,
			Code:     "MISSING_VEHICLE",
			Message:  "vehicle id is empty",
			Err:      position.ErrVehicleNotFound,
		}
	}

	endpoint := fmt.Sprintf("%s/v1/vehicles/%s/position", c.baseURL, url.PathEscape(vehicleID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("vehicle_id", vehicleID).
		Msg("requesting vehicle position")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &position.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach telemetry provider",
			Err:      position.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &position.Error{
			Provider: ProviderName,
			Code:     "NOT_FOUND",
			Message:  "vehicle not known to telemetry provider",
			Err:      position.ErrVehicleNotFound,
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &position.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  fmt.Sprintf("telemetry provider returned status %d", resp.StatusCode),
			Err:      position.ErrProviderUnavailable,
		}
	}

	var snap apiSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return c.toSnapshot(&snap), nil
}

func (c *Client) toSnapshot(s *apiSnapshot) *position.VehicleSnapshot {
	ts, err := time.Parse(time.RFC3339, s.Timestamp)
	if err != nil {
		// Stale-timestamp handling is the caller's concern; an unparsable
		// timestamp degrades to "sampled now".
		ts = time.Now()
	}

	return &position.VehicleSnapshot{
		VehicleID: s.VehicleID,
		Coord:     geo.Coordinate{Lat: s.Lat, Lon: s.Lng},
		SpeedKph:  s.SpeedKph,
		Heading:   s.Heading,
		Timestamp: ts,
	}
}
