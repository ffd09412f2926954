package directions

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/routetrack/routetrack/internal/geo"
	"github.com/routetrack/routetrack/pkg/polyline"
)

// ServiceConfig holds configuration for the directions service.
type ServiceConfig struct {
	// Provider is the routing source (required).
	Provider Provider

	// Profile is the routing profile (default: driving-hgv).
	Profile Profile

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache raw legs (default: 5 minutes).
	// The ETA chain is rebuilt every tick with mostly identical waypoints,
	// so even a short TTL removes nearly all repeat provider calls.
	CacheTTL time.Duration

	// CacheGridSize is the size of cache grid cells in degrees
	// (default: 0.002, ~220m). Points within a cell share cached legs.
	CacheGridSize float64
}

// Service resolves normalized drive legs with short-lived caching.
type Service struct {
	provider      Provider
	profile       Profile
	logger        zerolog.Logger
	cacheTTL      time.Duration
	cacheGridSize float64

	mu    sync.RWMutex
	cache map[string]cachedLeg
}

type cachedLeg struct {
	raw       RawLeg
	expiresAt time.Time
}

// NewService creates a new directions service.
func NewService(cfg ServiceConfig) *Service {
	profile := cfg.Profile
	if profile == "" {
		profile = ProfileHGV
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.002
	}

	return &Service{
		provider:      cfg.Provider,
		profile:       profile,
		logger:        cfg.Logger,
		cacheTTL:      cacheTTL,
		cacheGridSize: cacheGridSize,
		cache:         make(map[string]cachedLeg),
	}
}

// Route resolves the normalized drive leg between two coordinates:
//
//	minutes = max(round(rawMinutes * multiplier), ceil(km / maxSpeedKph * 60))
//
// so the projection never implies an unrealistically fast average speed even
// when the routing source under-estimates traffic.
func (s *Service) Route(ctx context.Context, from, to geo.Coordinate, n Normalization) (*Leg, error) {
	if !from.Valid() || !to.Valid() {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_COORDINATES",
			Message:  "coordinates out of range",
			Err:      ErrInvalidCoordinates,
		}
	}

	raw, err := s.rawLeg(ctx, from, to)
	if err != nil {
		return nil, err
	}

	return normalize(raw, n), nil
}

func (s *Service) rawLeg(ctx context.Context, from, to geo.Coordinate) (*RawLeg, error) {
	key := s.cacheKey(from, to)

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && time.Now().Before(cached.expiresAt) {
		return &cached.raw, nil
	}

	raw, err := s.provider.Directions(ctx, from, to, s.profile)
	if err != nil {
		s.logger.Error().Err(err).
			Float64("from_lat", from.Lat).
			Float64("from_lon", from.Lon).
			Float64("to_lat", to.Lat).
			Float64("to_lon", to.Lon).
			Msg("directions lookup failed")
		return nil, err
	}

	s.mu.Lock()
	s.cache[key] = cachedLeg{raw: *raw, expiresAt: time.Now().Add(s.cacheTTL)}
	s.mu.Unlock()

	return raw, nil
}

// cacheKey quantizes both endpoints to grid cells, so a vehicle creeping
// along inside one cell reuses the cached leg.
func (s *Service) cacheKey(from, to geo.Coordinate) string {
	g := s.cacheGridSize
	return fmt.Sprintf("%s:%.3f,%.3f:%.3f,%.3f",
		s.profile,
		math.Floor(from.Lat/g)*g, math.Floor(from.Lon/g)*g,
		math.Floor(to.Lat/g)*g, math.Floor(to.Lon/g)*g,
	)
}

func normalize(raw *RawLeg, n Normalization) *Leg {
	multiplier := n.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	km := float64(raw.DistanceMeters) / 1000
	if km == 0 && raw.Geometry != "" {
		// Some routing responses omit the summary distance on very short
		// legs; measure the returned geometry instead.
		km = polyline.Length(polyline.Decode(raw.Geometry)) / 1000
	}
	mins := int(math.Round(float64(raw.DurationSeconds) / 60 * multiplier))

	if n.MaxSpeedKph > 0 {
		floorMins := int(math.Ceil(km / n.MaxSpeedKph * 60))
		if floorMins > mins {
			mins = floorMins
		}
	}

	return &Leg{
		Minutes:  mins,
		Km:       km,
		Geometry: raw.Geometry,
	}
}

// InvalidateCache clears all cached legs.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cachedLeg)
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}
