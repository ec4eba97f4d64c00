package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access from refresh tokens. It travels in the
// "typ" claim.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the JWT payload for both token types.
type Claims struct {
	jwt.RegisteredClaims
	Email string    `json:"email,omitempty"`
	Role  Role      `json:"role"`
	Type  TokenType `json:"typ"`
}

// Principal returns the subject the token was issued to.
func (c *Claims) Principal() Subject {
	return Subject{ID: c.RegisteredClaims.Subject, Email: c.Email, Role: c.Role}
}

// Codec signs and verifies HS256 tokens.
//
// Thread Safety: a Codec is immutable after construction.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewCodec creates a codec. Both TTLs must be positive.
func NewCodec(secret string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock returns a copy of c that reads time from now. Used in tests to
// mint and check tokens at chosen instants.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// EncodeAccess mints a short-lived access token.
func (c *Codec) EncodeAccess(s Subject) (string, time.Time, error) {
	return c.encode(s, TokenTypeAccess, c.accessTTL)
}

// EncodeRefresh mints a long-lived refresh token.
func (c *Codec) EncodeRefresh(s Subject) (string, time.Time, error) {
	return c.encode(s, TokenTypeRefresh, c.refreshTTL)
}

func (c *Codec) encode(s Subject, typ TokenType, ttl time.Duration) (string, time.Time, error) {
	if s.ID == "" || s.Role == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject id and role are required", ErrTokenMalformed)
	}

	now := c.now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Email: s.Email,
		Role:  s.Role,
		Type:  typ,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing %s token: %w", typ, err)
	}
	return signed, exp, nil
}

// Decode verifies signature and expiry and returns the claims.
//
// The signature is checked before expiry, so ErrTokenExpired is only ever
// reported for a token this server actually issued. Everything else that
// fails is ErrTokenMalformed.
func (c *Codec) Decode(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}

	switch {
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	case claims.Role == "":
		return nil, fmt.Errorf("%w: missing role", ErrTokenMalformed)
	case claims.Type != TokenTypeAccess && claims.Type != TokenTypeRefresh:
		return nil, fmt.Errorf("%w: missing or unknown typ %q", ErrTokenMalformed, claims.Type)
	}

	return claims, nil
}
