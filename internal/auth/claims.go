package auth

import (
	"encoding/json"
	"strings"
	"time"
)

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleAdmin      Role = "admin"
)

// ParseRole normalises raw and reports whether it names a known role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.Valid()
}

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleFreelancer, RoleAdmin:
		return true
	}
	return false
}

// Identity is what a token is issued for. It is resolved from the user
// record at login time.
type Identity struct {
	UserID string
	Email  string
	Role   Role
}

// Claims is the verified content of a session token. Values are produced by
// a Verifier; handlers read them, they never build them.
type Claims struct {
	UserID    string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// MarshalJSON renders the claims in the token payload shape, timestamps as
// Unix seconds.
func (c Claims) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
		Role   Role   `json:"role"`
		IAT    int64  `json:"iat"`
		EXP    int64  `json:"exp"`
	}{c.UserID, c.Email, c.Role, c.IssuedAt.Unix(), c.ExpiresAt.Unix()})
}

func (c *Claims) HasRole(roles ...Role) bool {
	if c == nil {
		return false
	}
	for _, role := range roles {
		if c.Role == role {
			return true
		}
	}
	return false
}
