package handler

import (
	"context"

	"github.com/routetrack/routetrack/internal/actor"
	"github.com/routetrack/routetrack/internal/api/middleware"
)

// GetActor retrieves the verified actor claims from the context.
// This is a convenience wrapper around middleware.GetActor.
func GetActor(ctx context.Context) *actor.Claims {
	return middleware.GetActor(ctx)
}
