// Package auth implements the identity collaborator boundary: requests
// arrive with a bearer JWT minted by the external auth service, and this
// package only verifies it and extracts the opaque user identity.
package auth

import (
	"time"

	"github.com/avoronov/planvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the opaque authenticated-user identity.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Email  string `json:"email"`
}

// GenerateToken mints an HS256 token for the given identity. Used by tests
// and local tooling; production tokens come from the auth collaborator.
func GenerateToken(userID, email string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: userID,
		Email:  email,
	})
	return token.SignedString(secretKey)
}

// ExtractClaims decodes the claims WITHOUT verifying the signature. The
// client uses it to learn its own identity from a token it was handed;
// verification is the server's job.
func ExtractClaims(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, common.ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// ParseToken verifies tokenString and returns its claims, or
// common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
