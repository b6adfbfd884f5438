// Package auth issues and verifies the bearer tokens patient endpoints
// require. A token's subject is the patient id; its scopes gate operations
// beyond reading and checking in, such as submitting note results.
package auth

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Scopes a token may carry.
const (
	// ScopeNotesWrite allows submitting note extraction results.
	ScopeNotesWrite = "notes:write"
)

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed access token for the patient with the
	// given scopes.
	GenerateToken(ctx context.Context, patientID uuid.UUID, scopes ...string) (string, error)

	// ValidateToken validates the provided token string and extracts the claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid or ErrInvalidToken.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the verified contents of a token.
type Claims struct {
	// PatientID is the token's subject.
	PatientID uuid.UUID
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}
