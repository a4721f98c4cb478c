package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
)

// DefaultCookieName carries the session token on every call site.
const DefaultCookieName = "token"

// ErrUserGone is returned by a UserSource when the token's user was deleted.
var ErrUserGone = errors.New("auth: session user no longer exists")

type requestKey struct{}

// WithRequest binds r to ctx so the session cookie can be read further down
// the call chain.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

func requestFrom(ctx context.Context) (*http.Request, bool) {
	if ctx == nil {
		return nil, false
	}
	r, ok := ctx.Value(requestKey{}).(*http.Request)
	return r, ok && r != nil
}

// UserRecord is the persisted view of a user that the fresh resolver trusts
// over the token's embedded claims.
type UserRecord struct {
	ID    string
	Email string
	Role  Role
}

type UserSource interface {
	LookupUser(ctx context.Context, userID string) (UserRecord, error)
}

// Sessions resolves the caller behind the current request.
type Sessions struct {
	verifier   Verifier
	cookieName string
	users      UserSource
}

func NewSessions(verifier Verifier, cookieName string, users UserSource) *Sessions {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Sessions{verifier: verifier, cookieName: cookieName, users: users}
}

func (s *Sessions) CookieName() string {
	return s.cookieName
}

// CurrentUser returns the verified claims of the request bound to ctx, or nil
// when there is no request, no cookie, or the token is invalid.
func (s *Sessions) CurrentUser(ctx context.Context) *Claims {
	r, ok := requestFrom(ctx)
	if !ok {
		return nil
	}

	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	return s.verifier.Verify(cookie.Value)
}

// CurrentUserFresh resolves like CurrentUser and then re-reads the user so
// role and email changes made after issuance are reflected. A deleted user
// resolves to nil. If the store cannot be reached the verified claims are
// returned unchanged.
func (s *Sessions) CurrentUserFresh(ctx context.Context) *Claims {
	claims := s.CurrentUser(ctx)
	if claims == nil || s.users == nil {
		return claims
	}

	record, err := s.users.LookupUser(ctx, claims.UserID)
	if errors.Is(err, ErrUserGone) {
		return nil
	}
	if err != nil {
		slog.Warn("fresh session lookup failed, using token claims", "user_id", claims.UserID, "error", err)
		return claims
	}

	fresh := *claims
	fresh.Email = record.Email
	if record.Role.Valid() {
		fresh.Role = record.Role
	}
	return &fresh
}
