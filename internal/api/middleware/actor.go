package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/routetrack/routetrack/internal/actor"
	"github.com/routetrack/routetrack/internal/api/models"
)

// actorKey is the context key for the verified actor claims.
type actorKey struct{}

// Actor creates middleware that validates actor bearer tokens on manual
// action routes. The verified claims attribute the action (admin or driver)
// in the completion metadata.
func Actor(actorService *actor.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			tokenString := authHeader[len(bearerPrefix):]
			if tokenString == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := actorService.Verify(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, actor.ErrTokenExpired):
					writeUnauthorized(w, r, "actor token has expired")
				case errors.Is(err, actor.ErrInvalidToken):
					writeUnauthorized(w, r, "invalid actor token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), actorKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetActor retrieves the verified actor claims from the context.
// Returns nil if the request did not pass the actor middleware.
func GetActor(ctx context.Context) *actor.Claims {
	if claims, ok := ctx.Value(actorKey{}).(*actor.Claims); ok {
		return claims
	}
	return nil
}
