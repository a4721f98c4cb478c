package auth

import (
	"net/http"
	"strings"
)

type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnauthenticated
	ReasonForbidden
)

func (r Reason) String() string {
	switch r {
	case ReasonUnauthenticated:
		return "unauthenticated"
	case ReasonForbidden:
		return "forbidden"
	default:
		return "allowed"
	}
}

// Decision is the outcome of Authorize. Denials are normal results, not
// errors.
type Decision struct {
	Reason   Reason
	Required []Role
}

// Authorize admits claims whose role is in allowed. An empty allowed list
// admits any authenticated caller.
func Authorize(claims *Claims, allowed ...Role) Decision {
	if claims == nil {
		return Decision{Reason: ReasonUnauthenticated, Required: allowed}
	}
	if len(allowed) > 0 && !claims.HasRole(allowed...) {
		return Decision{Reason: ReasonForbidden, Required: allowed}
	}
	return Decision{Reason: ReasonNone, Required: allowed}
}

func (d Decision) Allowed() bool {
	return d.Reason == ReasonNone
}

// Status maps the decision to the HTTP status every protected route uses.
func (d Decision) Status() int {
	switch d.Reason {
	case ReasonUnauthenticated:
		return http.StatusUnauthorized
	case ReasonForbidden:
		return http.StatusForbidden
	default:
		return http.StatusOK
	}
}

func (d Decision) Code() string {
	switch d.Reason {
	case ReasonUnauthenticated:
		return "UNAUTHORIZED"
	case ReasonForbidden:
		return "FORBIDDEN"
	default:
		return ""
	}
}

// Message is the client-facing text; it never says why a token was rejected.
func (d Decision) Message() string {
	switch d.Reason {
	case ReasonUnauthenticated:
		return "Not authenticated"
	case ReasonForbidden:
		names := make([]string, 0, len(d.Required))
		for _, role := range d.Required {
			names = append(names, string(role))
		}
		return strings.Join(names, "/") + "-access required"
	default:
		return ""
	}
}
