/*
token.go - JWT issuing and verification

PURPOSE:
  Stateless bearer tokens for the HTTP API. HS256 with a shared secret,
  seven-day expiry, carrying the user id and the admin flag. The admin
  flag in the token is what gates the /api/admin routes; it is set at
  login time from the user record.
*/
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vantage/invest-engine/invest"
)

// TokenTTL is how long an issued token stays valid.
const TokenTTL = 7 * 24 * time.Hour

// Claims is the token payload.
type Claims struct {
	UserID  invest.UserID `json:"userId"`
	IsAdmin bool          `json:"isAdmin"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies JWTs with a fixed secret.
type Tokens struct {
	secret []byte
}

// NewTokens creates a token manager. The secret should be at least 32
// bytes; shorter secrets are accepted but weak.
func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret)}
}

// Issue signs a token for the given user.
func (t *Tokens) Issue(userID invest.UserID, isAdmin bool) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:  userID,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "invest-engine",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
func (t *Tokens) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
