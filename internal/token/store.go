package token

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mehmetcc/storefront/internal/storage"
	"go.uber.org/zap"
)

// Store is the single owner of the access/refresh token pair. Values are cached
// in memory and mirrored to durable storage; SetTokens and ClearTokens swap both
// values under one lock so readers never observe a mixed pair.
type Store struct {
	mu      sync.RWMutex
	access  string
	refresh string

	storage storage.Storage
	parser  *jwt.Parser
	now     func() time.Time
	logger  *zap.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(s storage.Storage, logger *zap.Logger, opts ...Option) *Store {
	st := &Store{
		storage: s,
		parser:  jwt.NewParser(),
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Load hydrates the cache from durable storage.
func (s *Store) Load(ctx context.Context) error {
	access, _, err := s.storage.Get(ctx, storage.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("load access token: %w", err)
	}
	refresh, _, err := s.storage.Get(ctx, storage.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("load refresh token: %w", err)
	}

	s.mu.Lock()
	s.access, s.refresh = access, refresh
	s.mu.Unlock()

	s.logger.Debug("tokens loaded from storage",
		zap.Bool("access_token", access != ""),
		zap.Bool("refresh_token", refresh != ""),
	)
	return nil
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.storage.SetAll(ctx, map[string]string{
		storage.KeyAccessToken:  access,
		storage.KeyRefreshToken: refresh,
	})
	if err != nil {
		s.logger.Error("failed to persist tokens", zap.Error(err))
		return fmt.Errorf("persist tokens: %w", err)
	}
	s.access, s.refresh = access, refresh

	s.logger.Debug("tokens saved",
		zap.Bool("access_token", access != ""),
		zap.Bool("refresh_token", refresh != ""),
	)
	return nil
}

// ClearTokens always empties the cache; the returned error only reports a
// failure to remove the persisted copies.
func (s *Store) ClearTokens(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.access, s.refresh = "", ""
	if err := s.storage.Remove(ctx, storage.KeyAccessToken, storage.KeyRefreshToken); err != nil {
		s.logger.Error("failed to remove persisted tokens", zap.Error(err))
		return fmt.Errorf("remove tokens: %w", err)
	}
	return nil
}

// IsAuthenticated does not look at expiration.
func (s *Store) IsAuthenticated() bool {
	return s.AccessToken() != ""
}

// HasSession reports whether both halves of the pair are present. A lone
// access or refresh token is not a usable session.
func (s *Store) HasSession() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access != "" && s.refresh != ""
}

// IsTokenExpired treats a missing or undecodable token as expired and a token
// without an exp claim as valid.
func (s *Store) IsTokenExpired() bool {
	tok := s.AccessToken()
	if tok == "" {
		return true
	}
	claims := s.DecodeClaims(tok)
	if claims == nil {
		return true
	}
	exp, ok, err := claims.Expiration()
	if err != nil {
		s.logger.Debug("malformed exp claim", zap.Error(err))
		return true
	}
	if !ok {
		return false
	}
	return exp.Before(s.now())
}

// Expiration returns the access token's exp claim, if any.
func (s *Store) Expiration() (time.Time, bool) {
	claims := s.DecodeClaims(s.AccessToken())
	if claims == nil {
		return time.Time{}, false
	}
	exp, ok, err := claims.Expiration()
	if err != nil {
		return time.Time{}, false
	}
	return exp, ok
}

// DecodeClaims reads the payload segment without verifying the signature or
// looking at the header; the client never holds the signing key. Malformed
// input yields nil.
func (s *Store) DecodeClaims(tok string) Claims {
	parts := strings.Split(tok, ".")
	if len(parts) < 2 || parts[1] == "" {
		return nil
	}
	raw, err := s.parser.DecodeSegment(parts[1])
	if err != nil {
		return nil
	}
	var mc jwt.MapClaims
	if err := json.Unmarshal(raw, &mc); err != nil || mc == nil {
		return nil
	}
	return Claims(mc)
}

func (s *Store) Claims() Claims {
	return s.DecodeClaims(s.AccessToken())
}

func (s *Store) UserID() string {
	claims := s.Claims()
	if claims == nil {
		return ""
	}
	return claims.First(UserIDKeys...)
}
