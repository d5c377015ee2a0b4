package auth

import (
	"context"
	"slices"

	"github.com/mehmetcc/storefront/internal/api"
	"github.com/mehmetcc/storefront/internal/token"
)

// User is the identity projected from the access token claims.
type User struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Roles     []string `json:"roles"`
}

func (u *User) HasRole(role string) bool {
	return u != nil && slices.Contains(u.Roles, role)
}

// userFromClaims fills gaps in the claims from the authentication response,
// which some backends populate more generously than the token.
func userFromClaims(c token.Claims, resp *api.AuthenticationResponse) *User {
	if c == nil && resp == nil {
		return nil
	}
	u := &User{
		ID:        c.First(token.UserIDKeys...),
		Email:     c.First(token.EmailKeys...),
		FirstName: c.First(token.GivenNameKey),
		LastName:  c.First(token.FamilyNameKey),
		Roles:     c.Roles(),
	}
	if resp != nil {
		if u.ID == "" {
			u.ID = resp.UserID
		}
		if u.Email == "" {
			u.Email = resp.Email
		}
		if len(u.Roles) == 0 {
			u.Roles = slices.Clone(resp.Roles)
		}
	}
	if u.Roles == nil {
		u.Roles = []string{}
	}
	return u
}

type Event int

const (
	EventLogin Event = iota + 1
	EventLogout
)

func (e Event) String() string {
	switch e {
	case EventLogin:
		return "login"
	case EventLogout:
		return "logout"
	}
	return "unknown"
}

// Listener receives session events synchronously on the goroutine that caused
// them.
type Listener func(ctx context.Context, e Event)

type Subscriber interface {
	Subscribe(l Listener) (unsubscribe func())
}
