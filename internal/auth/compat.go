package auth

import (
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"time"

	jwtv3 "github.com/golang-jwt/jwt"
	"github.com/thejerf/abtime"
)

// compatPayload decodes registered claims the way jwt/v5 does: NumericDate
// values may be fractional or quoted numbers, aud may be a string or an
// array of strings.
type compatPayload struct {
	UserID    string      `json:"userId"`
	Email     string      `json:"email"`
	Role      string      `json:"role"`
	Issuer    string      `json:"iss,omitempty"`
	Subject   string      `json:"sub,omitempty"`
	ID        string      `json:"jti,omitempty"`
	Audience  interface{} `json:"aud,omitempty"`
	ExpiresAt json.Number `json:"exp,omitempty"`
	NotBefore json.Number `json:"nbf,omitempty"`
	IssuedAt  json.Number `json:"iat,omitempty"`
}

// Valid is checked in Verify against the injected clock.
func (compatPayload) Valid() error { return nil }

// numericDate mirrors jwt/v5: seconds with an optional fraction, truncated
// to whole seconds.
func numericDate(n json.Number) (time.Time, bool, error) {
	if n == "" {
		return time.Time{}, false, nil
	}
	f, err := n.Float64()
	if err != nil {
		return time.Time{}, false, err
	}
	whole, frac := math.Modf(f)
	return time.Unix(int64(whole), int64(frac*1e9)).Truncate(time.Second), true, nil
}

func validAudience(aud interface{}) bool {
	switch v := aud.(type) {
	case nil, string:
		return true
	case []interface{}:
		for _, item := range v {
			if _, ok := item.(string); !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// CompatVerifier verifies Codec tokens with the golang-jwt v3 parser. It backs
// the edge guard, which runs before routing; outcomes match Codec.Verify.
type CompatVerifier struct {
	secret []byte
	clock  abtime.AbstractTime
	parser *jwtv3.Parser
}

func NewCompatVerifier(secret string, opts ...Option) (*CompatVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}

	o := buildOptions(opts)
	return &CompatVerifier{
		secret: []byte(secret),
		clock:  o.clock,
		// Time-based claims are checked against our clock below.
		parser: &jwtv3.Parser{
			ValidMethods:         []string{jwtv3.SigningMethodHS256.Alg()},
			SkipClaimsValidation: true,
		},
	}, nil
}

func (v *CompatVerifier) Verify(token string) *Claims {
	var p compatPayload
	parsed, err := v.parser.ParseWithClaims(token, &p, func(*jwtv3.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		slog.Debug("session token rejected", "verifier", "compat", "error", err)
		return nil
	}

	expiresAt, hasExp, expErr := numericDate(p.ExpiresAt)
	notBefore, hasNbf, nbfErr := numericDate(p.NotBefore)
	issuedAt, _, iatErr := numericDate(p.IssuedAt)
	if expErr != nil || nbfErr != nil || iatErr != nil || !validAudience(p.Audience) {
		slog.Debug("session token rejected", "verifier", "compat", "reason", "malformed registered claims")
		return nil
	}

	now := v.clock.Now()
	if !hasExp || !now.Before(expiresAt) {
		slog.Debug("session token rejected", "verifier", "compat", "reason", "expired")
		return nil
	}
	if hasNbf && now.Before(notBefore) {
		slog.Debug("session token rejected", "verifier", "compat", "reason", "not yet valid")
		return nil
	}

	return newClaims(p.UserID, p.Email, p.Role, issuedAt, expiresAt)
}
