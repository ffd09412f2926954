// Package actor issues and verifies the signed tokens that attribute manual
// progress actions to a human actor (admin or driver). This is attribution,
// not a user-management system: the external scheduling surface authenticates
// people; this service only needs to know who to write into the completion
// metadata.
package actor

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/routetrack/routetrack/internal/progress"
)

// TokenExpiry is how long actor tokens are valid. A token covers one working
// day; the issuing surface hands out a fresh one per session.
const TokenExpiry = 12 * time.Hour

// Default issuer and audience claims.
const (
	DefaultIssuer   = "https://api.routetrack.io"
	DefaultAudience = "routetrack-api"
)

// Predefined token errors.
var (
	ErrInvalidToken = errors.New("invalid actor token")
	ErrTokenExpired = errors.New("actor token has expired")
	ErrUnknownRole  = errors.New("unknown actor role")
)

// Role is the actor role carried in a token.
type Role string

const (
	// RoleAdmin is office staff acting on any run.
	RoleAdmin Role = "admin"
	// RoleDriver is the assigned driver acting on their own run.
	RoleDriver Role = "driver"
)

// Actor converts the role to its progress attribution value.
func (r Role) Actor() progress.Actor {
	if r == RoleDriver {
		return progress.ActorDriver
	}
	return progress.ActorAdmin
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleDriver
}

// Claims represents the claims in an actor token.
type Claims struct {
	jwt.RegisteredClaims

	// Role is the actor role (admin or driver).
	Role Role `json:"role"`
}

// Service handles actor token creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
}

// Config holds configuration for the actor token service.
type Config struct {
	// SigningKey is the secret key used to sign tokens.
	SigningKey string

	// Issuer is the issuer claim for tokens.
	Issuer string

	// Audience is the audience claim for tokens.
	Audience string
}

// NewService creates a new actor token service.
func NewService(cfg Config) *Service {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}

	audience := cfg.Audience
	if audience == "" {
		audience = DefaultAudience
	}

	return &Service{
		signingKey: []byte(cfg.SigningKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// Issue creates a signed token for the given subject and role.
func (s *Service) Issue(subject string, role Role) (string, time.Time, error) {
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	now := time.Now()
	expiresAt := now.Add(TokenExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing actor token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Verify validates a token and returns its claims.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role)
	}

	return claims, nil
}

// generateTokenID generates a unique token ID.
func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
