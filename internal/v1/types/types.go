// Package types holds the interfaces shared between the transport and the
// control plane, kept apart so neither imports the other.
package types

import (
	"github.com/scorecast/scorecast/internal/v1/auth"
)

// TokenValidator defines the interface for bearer-token authentication services.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}
