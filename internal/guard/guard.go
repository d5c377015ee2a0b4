// Package guard decides whether a page may be entered with the current
// session.
package guard

import (
	"context"
	"net/http"

	"github.com/mehmetcc/storefront/internal/httpx"
	"github.com/mehmetcc/storefront/internal/language"
	"github.com/mehmetcc/storefront/internal/metrics"
	"go.uber.org/zap"
)

type SessionSource interface {
	HasSession() bool
}

type RoleChecker interface {
	HasRole(role string) bool
}

type Locator interface {
	LoginPath(ctx context.Context, returnURL string) string
	UnauthorizedPath(ctx context.Context) string
}

type Decision struct {
	Allowed  bool
	Redirect string
	Reason   string
}

type Guard struct {
	tokens  SessionSource
	roles   RoleChecker
	locator Locator
	nav     httpx.Navigator
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(tokens SessionSource, roles RoleChecker, locator Locator, nav httpx.Navigator, m *metrics.Metrics, logger *zap.Logger) *Guard {
	return &Guard{
		tokens:  tokens,
		roles:   roles,
		locator: locator,
		nav:     nav,
		metrics: m,
		logger:  logger,
	}
}

// Decide only checks that both tokens are present; an expired access token is
// left to the authorizer's refresh. Any one of roles is enough.
func (g *Guard) Decide(ctx context.Context, path string, roles ...string) Decision {
	if !g.tokens.HasSession() {
		return Decision{
			Redirect: g.locator.LoginPath(ctx, language.StripPrefix(path)),
			Reason:   metrics.ReasonUnauthenticated,
		}
	}
	if len(roles) == 0 {
		return Decision{Allowed: true}
	}
	for _, r := range roles {
		if g.roles.HasRole(r) {
			return Decision{Allowed: true}
		}
	}
	return Decision{
		Redirect: g.locator.UnauthorizedPath(ctx),
		Reason:   metrics.ReasonForbiddenRole,
	}
}

// Check navigates away when entry is denied.
func (g *Guard) Check(ctx context.Context, path string, roles ...string) bool {
	d := g.Decide(ctx, path, roles...)
	if d.Allowed {
		return true
	}
	g.deny(path, d)
	g.nav.Navigate(ctx, d.Redirect)
	return false
}

// Require is chi-compatible middleware answering denied requests with a
// 303 to the login or unauthorized page.
func (g *Guard) Require(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Decide(r.Context(), r.URL.RequestURI(), roles...)
			if !d.Allowed {
				g.deny(r.URL.Path, d)
				http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) deny(path string, d Decision) {
	g.metrics.ObserveNavigation(d.Reason)
	g.logger.Info("page access denied",
		zap.String("path", path),
		zap.String("reason", d.Reason),
		zap.String("redirect", d.Redirect))
}
