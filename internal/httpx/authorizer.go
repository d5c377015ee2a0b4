package httpx

import (
	"context"
	"io"
	"net/http"

	"github.com/mehmetcc/storefront/internal/api"
	"github.com/mehmetcc/storefront/internal/metrics"
	"github.com/mehmetcc/storefront/internal/storage"
	"go.uber.org/zap"
)

type TokenSource interface {
	AccessToken() string
	RefreshToken() string
	HasSession() bool
}

// Refresher renews and destroys the session. Refresh must not log out on its
// own; the authorizer decides when a failed refresh ends the session.
type Refresher interface {
	Refresh(ctx context.Context) (*api.AuthenticationResponse, error)
	Logout(ctx context.Context) error
}

type LoginLocator interface {
	LoginPath(ctx context.Context, returnURL string) string
}

type resetter interface {
	Reset() error
}

type authorizer struct {
	base    http.RoundTripper
	tokens  TokenSource
	auth    Refresher
	login   LoginLocator
	nav     Navigator
	session storage.Storage
	cookies resetter
	metrics *metrics.Metrics
	logger  *zap.Logger
}

type AuthorizerOption func(*authorizer)

// WithSessionStorage sets the per-session storage wiped on teardown.
func WithSessionStorage(s storage.Storage) AuthorizerOption {
	return func(a *authorizer) { a.session = s }
}

// WithCookieJar drops all cookies of jar on teardown.
func WithCookieJar(jar *Jar) AuthorizerOption {
	return func(a *authorizer) { a.cookies = jar }
}

func WithMetrics(m *metrics.Metrics) AuthorizerOption {
	return func(a *authorizer) { a.metrics = m }
}

// NewAuthorizer wraps base with bearer token injection and the
// refresh-and-retry-once handling of 401 responses.
func NewAuthorizer(base http.RoundTripper, tokens TokenSource, auth Refresher, login LoginLocator, nav Navigator, logger *zap.Logger, opts ...AuthorizerOption) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	a := &authorizer{
		base:   base,
		tokens: tokens,
		auth:   auth,
		login:  login,
		nav:    nav,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *authorizer) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req
	if !IsAuthEndpoint(req) {
		if tok := a.tokens.AccessToken(); tok != "" {
			out = withBearer(req.Context(), req, tok)
		}
	}

	resp, err := a.send(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	if IsAuthEndpoint(req) || IsPublicEndpoint(req) || IsRetried(req.Context()) {
		return resp, nil
	}

	if !a.tokens.HasSession() {
		return a.unauthenticated(req, resp), nil
	}
	return a.refreshAndRetry(req, resp)
}

func (a *authorizer) send(req *http.Request) (*http.Response, error) {
	resp, err := a.base.RoundTrip(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	a.metrics.ObserveUpstream(status, err)
	return resp, err
}

func (a *authorizer) unauthenticated(req *http.Request, resp *http.Response) *http.Response {
	if IsGuestCartRead(req) {
		a.logger.Debug("guest cart read rejected, keeping local cart",
			zap.String("path", req.URL.Path))
		return resp
	}

	ctx := req.Context()
	if a.tokens.AccessToken() != "" || a.tokens.RefreshToken() != "" {
		if err := a.auth.Logout(ctx); err != nil {
			a.logger.Warn("failed to clear partial session", zap.Error(err))
		}
	}
	a.navigateToLogin(req, metrics.ReasonUnauthenticated)
	return resp
}

func (a *authorizer) refreshAndRetry(req *http.Request, resp *http.Response) (*http.Response, error) {
	ctx := req.Context()
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		a.logger.Warn("cannot replay request body, skipping refresh",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path))
		return resp, nil
	}

	renewed, err := a.auth.Refresh(ctx)
	if err != nil {
		if api.IsUnauthorized(err) {
			a.metrics.ObserveRefresh(metrics.RefreshUnauthorized)
			a.logger.Info("refresh token rejected, ending session")
			a.teardown(ctx)
			a.navigateToLogin(req, metrics.ReasonSessionExpired)
			return resp, nil
		}
		a.metrics.ObserveRefresh(metrics.RefreshError)
		a.logger.Warn("token refresh failed, keeping session",
			zap.Int("status", api.StatusOf(err)),
			zap.Error(err))
		return resp, nil
	}
	a.metrics.ObserveRefresh(metrics.RefreshSuccess)

	tok := renewed.Token
	if tok == "" {
		tok = a.tokens.AccessToken()
	}
	retry := withBearer(markRetried(ctx), req, tok)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	a.metrics.ObserveRetry()
	a.logger.Debug("retrying request with renewed token",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path))
	return a.send(retry)
}

func (a *authorizer) teardown(ctx context.Context) {
	a.metrics.ObserveTeardown()
	if err := a.auth.Logout(ctx); err != nil {
		a.logger.Warn("logout during teardown failed", zap.Error(err))
	}
	if a.session != nil {
		if err := a.session.Clear(ctx); err != nil {
			a.logger.Warn("failed to clear session storage", zap.Error(err))
		}
	}
	if a.cookies != nil {
		if err := a.cookies.Reset(); err != nil {
			a.logger.Warn("failed to drop cookies", zap.Error(err))
		}
	}
}

func (a *authorizer) navigateToLogin(req *http.Request, reason string) {
	ctx := req.Context()
	target := a.login.LoginPath(ctx, returnPath(req))
	a.metrics.ObserveNavigation(reason)
	a.logger.Info("redirecting to login",
		zap.String("reason", reason),
		zap.String("target", target))
	a.nav.Navigate(ctx, target)
}

func withBearer(ctx context.Context, req *http.Request, token string) *http.Request {
	r := req.Clone(ctx)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}
