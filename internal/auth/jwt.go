// Package auth verifies bearer tokens and carries the resulting identity on
// the request context.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// Verifier turns a raw bearer token into an identity.
type Verifier interface {
	Verify(token string) (pixel.Identity, error)
}

// Claims are the access-token claims. ID may arrive as a JSON number or string.
type Claims struct {
	ID   any    `json:"id,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// HMAC signs and verifies HS256 access tokens with a shared secret.
type HMAC struct {
	secret []byte
	parser *jwt.Parser
}

func NewHMAC(secret string) *HMAC {
	return &HMAC{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify checks the signature and expiry of token and extracts its identity.
// Errors wrap pixel.ErrUnauthenticated.
func (h *HMAC) Verify(token string) (pixel.Identity, error) {
	var claims Claims
	_, err := h.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return h.secret, nil
	})
	if err != nil {
		return pixel.Identity{}, fmt.Errorf("%w: %w", pixel.ErrUnauthenticated, err)
	}

	id, err := claimID(claims)
	if err != nil {
		return pixel.Identity{}, fmt.Errorf("%w: %w", pixel.ErrUnauthenticated, err)
	}
	return pixel.Identity{ID: id, Role: claims.Role}, nil
}

// Sign issues a token for id valid for ttl.
func (h *HMAC) Sign(id pixel.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ID:   id.ID,
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

var errNoSubject = errors.New("token carries no id or sub claim")

func claimID(c Claims) (string, error) {
	switch v := c.ID.(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	if c.Subject != "" {
		return c.Subject, nil
	}
	return "", errNoSubject
}
