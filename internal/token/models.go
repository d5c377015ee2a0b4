package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded payload of an access token.
type Claims map[string]any

// Candidate claim names, tried in order. Backends disagree on how they name the
// subject, email and role claims (JWT registered names, ASP.NET short names,
// WS-Federation URIs), so each fact is looked up under every name we have seen.
var (
	UserIDKeys = []string{
		"nameid",
		"sub",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier",
		"userId",
		"uid",
	}
	EmailKeys = []string{
		"email",
		"unique_name",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
	}
	RoleKeys = []string{
		"role",
		"roles",
		"http://schemas.microsoft.com/ws/2008/06/identity/claims/role",
	}
)

const (
	GivenNameKey  = "given_name"
	FamilyNameKey = "family_name"
)

// First returns the first candidate key holding a non-empty scalar value.
func (c Claims) First(keys ...string) string {
	for _, k := range keys {
		switch v := c[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

// Roles accepts a single role string or a role array under any RoleKeys name.
func (c Claims) Roles() []string {
	for _, k := range RoleKeys {
		switch v := c[k].(type) {
		case string:
			if v != "" {
				return []string{v}
			}
		case []any:
			roles := make([]string, 0, len(v))
			for _, r := range v {
				if s, ok := r.(string); ok && s != "" {
					roles = append(roles, s)
				}
			}
			if len(roles) > 0 {
				return roles
			}
		}
	}
	return nil
}

// Expiration reports the exp claim. ok is false when the claim is absent; an
// error means the claim exists but is not a NumericDate.
func (c Claims) Expiration() (exp time.Time, ok bool, err error) {
	nd, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil {
		return time.Time{}, false, err
	}
	if nd == nil {
		return time.Time{}, false, nil
	}
	return nd.Time, true, nil
}
