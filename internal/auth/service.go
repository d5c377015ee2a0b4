package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mehmetcc/storefront/internal/api"
	"github.com/mehmetcc/storefront/internal/token"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Coordinator interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.AuthenticationResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.AuthenticationResponse, error)
	Refresh(ctx context.Context) (*api.AuthenticationResponse, error)
	Logout(ctx context.Context) error
	Restore(ctx context.Context)
	CurrentUser() *User
	UserID() string
	IsLoggedIn() bool
	IsAuthenticated() bool
	HasRole(role string) bool
	Subscriber
}

// AccountClient is the backend surface the coordinator needs.
type AccountClient interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.AuthenticationResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.AuthenticationResponse, error)
	RefreshToken(ctx context.Context, req api.TokenModel) (*api.AuthenticationResponse, error)
}

type coordinator struct {
	account   AccountClient
	tokens    *token.Store
	validator *validator.Validate
	logger    *zap.Logger

	refreshes singleflight.Group

	mu       sync.RWMutex
	user     *User
	loggedIn bool

	subsMu    sync.Mutex
	subs      map[int]Listener
	nextSubID int
}

func NewCoordinator(account AccountClient, tokens *token.Store, logger *zap.Logger) Coordinator {
	return &coordinator{
		account:   account,
		tokens:    tokens,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		loggedIn:  tokens.IsAuthenticated(),
		subs:      make(map[int]Listener),
	}
}

func (c *coordinator) Login(ctx context.Context, req api.LoginRequest) (*api.AuthenticationResponse, error) {
	if err := c.validator.Struct(req); err != nil {
		c.logger.Warn("login validation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	resp, err := c.account.Login(ctx, req)
	if err != nil {
		return nil, c.credentialError("login", err)
	}
	return c.establish(ctx, "login", resp)
}

func (c *coordinator) Register(ctx context.Context, req api.RegisterRequest) (*api.AuthenticationResponse, error) {
	if err := c.validator.Struct(req); err != nil {
		c.logger.Warn("register validation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	resp, err := c.account.Register(ctx, req)
	if err != nil {
		return nil, c.credentialError("register", err)
	}
	return c.establish(ctx, "register", resp)
}

func (c *coordinator) credentialError(op string, err error) error {
	c.logger.Warn(op+" failed", zap.Int("status", api.StatusOf(err)), zap.Error(err))
	if api.IsUnauthorized(err) {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	return err
}

// establish stores the tokens of a successful login/register and announces
// the new session.
func (c *coordinator) establish(ctx context.Context, op string, resp *api.AuthenticationResponse) (*api.AuthenticationResponse, error) {
	if resp == nil || resp.Token == "" {
		c.logger.Error("no token in "+op+" response")
		return nil, ErrMissingToken
	}
	if err := c.tokens.SetTokens(ctx, resp.Token, resp.RefreshToken); err != nil {
		return nil, err
	}

	user := userFromClaims(c.tokens.DecodeClaims(resp.Token), resp)
	c.mu.Lock()
	c.loggedIn = true
	c.user = user
	c.mu.Unlock()

	c.logger.Info(op+" succeeded", zap.String("user_id", user.ID))
	c.publish(ctx, EventLogin)
	return resp, nil
}

// Refresh renews the access token. The error is returned untouched so the
// caller decides whether the session is lost; Refresh itself never logs out.
// Concurrent calls share one backend round trip.
func (c *coordinator) Refresh(ctx context.Context) (*api.AuthenticationResponse, error) {
	v, err, shared := c.refreshes.Do("refresh", func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})
	if shared {
		c.logger.Debug("joined in-flight token refresh")
	}
	if err != nil {
		return nil, err
	}
	return v.(*api.AuthenticationResponse), nil
}

func (c *coordinator) refresh(ctx context.Context) (*api.AuthenticationResponse, error) {
	refresh := c.tokens.RefreshToken()
	if refresh == "" {
		c.logger.Warn("refresh requested without a refresh token")
		return nil, ErrNoRefreshToken
	}

	resp, err := c.account.RefreshToken(ctx, api.TokenModel{
		Token:        c.tokens.AccessToken(),
		RefreshToken: refresh,
	})
	if err != nil {
		c.logger.Warn("token refresh failed", zap.Int("status", api.StatusOf(err)), zap.Error(err))
		return nil, err
	}
	if resp == nil || resp.Token == "" {
		c.logger.Warn("no token in refresh response")
		return nil, ErrMissingToken
	}
	if resp.RefreshToken == "" {
		resp.RefreshToken = refresh
	}
	if err := c.tokens.SetTokens(ctx, resp.Token, resp.RefreshToken); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.loggedIn = true
	if u := userFromClaims(c.tokens.DecodeClaims(resp.Token), nil); u != nil && u.ID != "" {
		c.user = u
	}
	c.mu.Unlock()

	c.logger.Debug("tokens refreshed")
	return resp, nil
}

func (c *coordinator) Logout(ctx context.Context) error {
	err := c.tokens.ClearTokens(ctx)

	c.mu.Lock()
	c.loggedIn = false
	c.user = nil
	c.mu.Unlock()

	c.publish(ctx, EventLogout)
	c.logger.Info("logged out")
	return err
}

// Restore rebuilds the identity cache from a stored access token.
func (c *coordinator) Restore(ctx context.Context) {
	if !c.tokens.IsAuthenticated() {
		return
	}
	user := userFromClaims(c.tokens.Claims(), nil)
	if user == nil {
		c.logger.Warn("stored access token has no readable claims")
		return
	}
	c.mu.Lock()
	c.loggedIn = true
	c.user = user
	c.mu.Unlock()
	c.logger.Debug("session restored", zap.String("user_id", user.ID))
}

func (c *coordinator) CurrentUser() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *coordinator) UserID() string {
	if u := c.CurrentUser(); u != nil {
		return u.ID
	}
	return ""
}

func (c *coordinator) IsLoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loggedIn
}

func (c *coordinator) IsAuthenticated() bool {
	return c.tokens.IsAuthenticated() && !c.tokens.IsTokenExpired()
}

func (c *coordinator) HasRole(role string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user.HasRole(role)
}

func (c *coordinator) Subscribe(l Listener) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

func (c *coordinator) publish(ctx context.Context, e Event) {
	c.subsMu.Lock()
	listeners := make([]Listener, 0, len(c.subs))
	for _, l := range c.subs {
		listeners = append(listeners, l)
	}
	c.subsMu.Unlock()

	for _, l := range listeners {
		l(ctx, e)
	}
}

// IsSessionFatal reports whether a refresh error means the stored session can
// no longer be renewed.
func IsSessionFatal(err error) bool {
	return api.StatusOf(err) == http.StatusUnauthorized
}
