// Package auth issues and verifies the HS256 tokens that identify callers of
// the management API.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the caller's user id and the organisation printed on the
// certificates they generate.
type Claims struct {
	jwt.RegisteredClaims
	UserID       string
	Organisation string
}

// Identity is the verified caller.
type Identity struct {
	UserID       string
	Organisation string
}

func GenerateToken(id Identity, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID:       id.UserID,
		Organisation: id.Organisation,
	})

	return token.SignedString(secretKey)
}

// ParseToken verifies tokenString and returns the caller identity.
// Expired tokens yield common.ErrTokenExpired; anything else that fails
// verification yields common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return &Identity{UserID: claims.UserID, Organisation: claims.Organisation}, nil
}
