package geocode

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/routetrack/routetrack/internal/geo"
	"github.com/routetrack/routetrack/internal/run"
)

// ServiceConfig holds configuration for the geocode service.
type ServiceConfig struct {
	// Provider is the geocoding source (required).
	Provider Provider

	// Shared is an optional cross-process cache consulted before the
	// provider and populated after successful resolutions.
	Shared SharedCache

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service resolves postcodes to coordinates, memoizing every successful
// resolution for the process lifetime. A resolved postcode never changes, so
// entries are cached indefinitely.
type Service struct {
	provider Provider
	shared   SharedCache
	logger   zerolog.Logger

	mu  sync.RWMutex
	mem map[string]geo.Coordinate
}

// NewService creates a new geocode service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		provider: cfg.Provider,
		shared:   cfg.Shared,
		logger:   cfg.Logger,
		mem:      make(map[string]geo.Coordinate),
	}
}

// Resolve returns the coordinate for a postcode token.
// Lookup order: in-process memo, shared cache, provider.
func (s *Service) Resolve(ctx context.Context, postcode string) (geo.Coordinate, error) {
	key := run.NormalizePostcode(postcode)
	if key == "" {
		return geo.Coordinate{}, &Error{
			Provider: s.provider.Name(),
			Code:     "EMPTY_TOKEN",
			Message:  "empty postcode token",
			Err:      ErrNoMatch,
		}
	}

	s.mu.RLock()
	coord, ok := s.mem[key]
	s.mu.RUnlock()
	if ok {
		return coord, nil
	}

	if s.shared != nil {
		coord, ok, err := s.shared.Get(ctx, key)
		if err != nil {
			// Shared cache trouble is never fatal; fall through to provider.
			s.logger.Warn().Err(err).Str("postcode", key).Msg("shared geocode cache read failed")
		} else if ok {
			s.memoize(key, coord)
			return coord, nil
		}
	}

	coord, err := s.provider.Resolve(ctx, key)
	if err != nil {
		return geo.Coordinate{}, err
	}

	s.memoize(key, coord)

	if s.shared != nil {
		if err := s.shared.Put(ctx, key, coord); err != nil {
			s.logger.Warn().Err(err).Str("postcode", key).Msg("shared geocode cache write failed")
		}
	}

	s.logger.Debug().
		Str("postcode", key).
		Float64("lat", coord.Lat).
		Float64("lon", coord.Lon).
		Msg("resolved postcode")

	return coord, nil
}

// ResolveMany resolves a set of postcodes best-effort: tokens that fail to
// resolve are simply absent from the result. Used for stop coordinate lookup
// where an unresolvable stop is indeterminate, not an error.
func (s *Service) ResolveMany(ctx context.Context, postcodes []string) map[string]geo.Coordinate {
	out := make(map[string]geo.Coordinate, len(postcodes))
	for _, pc := range postcodes {
		key := run.NormalizePostcode(pc)
		if _, done := out[key]; done {
			continue
		}
		coord, err := s.Resolve(ctx, key)
		if err != nil {
			s.logger.Debug().Err(err).Str("postcode", key).Msg("postcode unresolved, skipping")
			continue
		}
		out[key] = coord
	}
	return out
}

func (s *Service) memoize(key string, coord geo.Coordinate) {
	s.mu.Lock()
	s.mem[key] = coord
	s.mu.Unlock()
}

// MemoSize returns the number of memoized resolutions, for diagnostics.
func (s *Service) MemoSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mem)
}
