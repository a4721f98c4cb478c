package middleware

import (
	"context"
	"net/http"
	"strings"

	"workbridge/internal/auth"
	"workbridge/internal/model"
	"workbridge/internal/observability"
)

type contextKey string

const authClaimsContextKey contextKey = "auth_claims"

// Session binds the inbound request to its context so the session accessor
// can read the cookie anywhere below.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.WithRequest(r.Context(), r)))
	})
}

type AuthMiddleware struct {
	sessions *auth.Sessions
	metrics  *observability.Metrics
}

func NewAuthMiddleware(sessions *auth.Sessions, metrics *observability.Metrics) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, metrics: metrics}
}

// RequireRoles admits callers holding one of roles. With no roles it only
// requires a valid session. Admitted claims are stored on the context.
func (m *AuthMiddleware) RequireRoles(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithRequest(r.Context(), r)
			claims := m.sessions.CurrentUser(ctx)
			decision := auth.Authorize(claims, roles...)
			m.metrics.ObserveDecision(decision.Reason.String())

			if !decision.Allowed() {
				WriteDecision(w, decision)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
		})
	}
}

// WithClaims stores admitted claims on ctx.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, authClaimsContextKey, claims)
}

func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// WriteDecision writes the 401/403 body for a denied decision.
func WriteDecision(w http.ResponseWriter, d auth.Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(d.Status())
	_ = jsonEncode(w, model.APIResponse{
		Success: false,
		Error:   d.Message(),
		Code:    d.Code(),
	})
}

// EdgeRule restricts every path under Prefix to Roles.
type EdgeRule struct {
	Prefix string
	Roles  []auth.Role
}

func (r EdgeRule) matches(path string) bool {
	prefix := strings.TrimSuffix(r.Prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// EdgeGuard rejects requests for guarded prefixes before they reach the
// router. It verifies with its own session accessor so the check does not
// depend on the route-level one.
func EdgeGuard(sessions *auth.Sessions, metrics *observability.Metrics, rules ...EdgeRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, rule := range rules {
				if !rule.matches(r.URL.Path) {
					continue
				}

				claims := sessions.CurrentUser(auth.WithRequest(r.Context(), r))
				decision := auth.Authorize(claims, rule.Roles...)
				metrics.ObserveDecision(decision.Reason.String())

				if !decision.Allowed() {
					WriteDecision(w, decision)
					return
				}
				break
			}

			next.ServeHTTP(w, r)
		})
	}
}
