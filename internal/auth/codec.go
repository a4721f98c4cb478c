// Package auth issues and verifies session tokens, resolves the caller's
// identity from the session cookie and decides role-based access.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/thejerf/abtime"
)

// DefaultTTL is used when Issue is called with a non-positive ttl.
const DefaultTTL = 7 * 24 * time.Hour

var ErrMissingSecret = errors.New("auth: signing secret is not configured")

// Verifier turns a serialized token into verified claims. Every failure
// (malformed, bad signature, expired, unknown role) yields nil; callers treat
// nil as unauthenticated and never learn why.
type Verifier interface {
	Verify(token string) *Claims
}

type options struct {
	clock abtime.AbstractTime
}

type Option func(*options)

// WithClock replaces the wall clock used for iat/exp.
func WithClock(clock abtime.AbstractTime) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: abtime.NewRealTime()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type payload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 session tokens with the process-wide secret.
type Codec struct {
	secret []byte
	clock  abtime.AbstractTime
	parser *jwt.Parser
}

func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}

	o := buildOptions(opts)
	return &Codec{
		secret: []byte(secret),
		clock:  o.clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(o.clock.Now),
		),
	}, nil
}

// Issue signs a token for id that expires after ttl (DefaultTTL when ttl <= 0).
// It returns the token and its expiry, truncated to the second as encoded.
func (c *Codec) Issue(id Identity, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(id.UserID) == "" {
		return "", time.Time{}, errors.New("auth: identity has no user id")
	}
	if !id.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("auth: unknown role %q", id.Role)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := c.clock.Now().UTC()
	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload{
		UserID: id.UserID,
		Email:  id.Email,
		Role:   string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}

	return signed, expiresAt.Time, nil
}

func (c *Codec) Verify(token string) *Claims {
	var p payload
	parsed, err := c.parser.ParseWithClaims(token, &p, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		slog.Debug("session token rejected", "verifier", "primary", "error", err)
		return nil
	}

	var issuedAt time.Time
	if p.IssuedAt != nil {
		issuedAt = p.IssuedAt.Time
	}

	return newClaims(p.UserID, p.Email, p.Role, issuedAt, p.ExpiresAt.Time)
}

func newClaims(userID string, email string, rawRole string, issuedAt time.Time, expiresAt time.Time) *Claims {
	role := Role(rawRole)
	if userID == "" || !role.Valid() {
		slog.Debug("session token rejected", "reason", "incomplete claims")
		return nil
	}

	return &Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		IssuedAt:  issuedAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
	}
}
