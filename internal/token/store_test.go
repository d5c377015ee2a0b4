package token

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mehmetcc/storefront/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mint(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func newTestStore(now time.Time) (*Store, *storage.MemoryStore) {
	mem := storage.NewMemoryStore()
	return NewStore(mem, zap.NewNop(), WithClock(func() time.Time { return now })), mem
}

func TestSetTokensRoundTrip(t *testing.T) {
	ctx := context.Background()
	pairs := [][2]string{
		{"a", "b"},
		{"eyJ.x.y", ""},
		{"", "refresh-only"},
		{"same", "same"},
	}
	for _, p := range pairs {
		s, mem := newTestStore(time.Now())
		require.NoError(t, s.SetTokens(ctx, p[0], p[1]))
		assert.Equal(t, p[0], s.AccessToken())
		assert.Equal(t, p[1], s.RefreshToken())

		persisted, _, err := mem.Get(ctx, storage.KeyAccessToken)
		require.NoError(t, err)
		assert.Equal(t, p[0], persisted)
		persisted, _, err = mem.Get(ctx, storage.KeyRefreshToken)
		require.NoError(t, err)
		assert.Equal(t, p[1], persisted)
	}
}

func TestClearTokens(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(time.Now())
	require.NoError(t, s.SetTokens(ctx, "t1", "r1"))
	require.NoError(t, s.ClearTokens(ctx))

	assert.False(t, s.IsAuthenticated())
	assert.False(t, s.HasSession())
	assert.Empty(t, s.AccessToken())
	assert.Empty(t, s.RefreshToken())
	assert.Equal(t, 0, mem.Len())
}

type failingStorage struct{ storage.Storage }

func (failingStorage) SetAll(context.Context, map[string]string) error { return errors.New("disk full") }
func (failingStorage) Remove(context.Context, ...string) error          { return errors.New("disk full") }

func TestStorageFailures(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	require.NoError(t, mem.SetAll(ctx, map[string]string{storage.KeyAccessToken: "old", storage.KeyRefreshToken: "old-r"}))

	s := NewStore(failingStorage{mem}, zap.NewNop())
	require.NoError(t, s.Load(ctx))

	assert.Error(t, s.SetTokens(ctx, "new", "new-r"))
	assert.Equal(t, "old", s.AccessToken(), "cache must not change when persistence fails")

	assert.Error(t, s.ClearTokens(ctx))
	assert.Empty(t, s.AccessToken(), "clear empties the cache even when persistence fails")
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	require.NoError(t, mem.SetAll(ctx, map[string]string{storage.KeyAccessToken: "a", storage.KeyRefreshToken: "r"}))

	s := NewStore(mem, zap.NewNop())
	assert.False(t, s.IsAuthenticated())
	require.NoError(t, s.Load(ctx))
	assert.True(t, s.HasSession())
}

func TestHasSessionNeedsBothTokens(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(time.Now())

	require.NoError(t, s.SetTokens(ctx, "access", ""))
	assert.True(t, s.IsAuthenticated())
	assert.False(t, s.HasSession())

	require.NoError(t, s.SetTokens(ctx, "", "refresh"))
	assert.False(t, s.IsAuthenticated())
	assert.False(t, s.HasSession())

	require.NoError(t, s.SetTokens(ctx, "access", "refresh"))
	assert.True(t, s.HasSession())
}

func TestIsTokenExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		token func(t *testing.T) string
		want  bool
	}{
		{name: "no token", token: func(*testing.T) string { return "" }, want: true},
		{name: "malformed token", token: func(*testing.T) string { return "not-a-jwt" }, want: true},
		{name: "no exp claim", token: func(t *testing.T) string { return mint(t, jwt.MapClaims{"sub": "u1"}) }, want: false},
		{name: "exp in past", token: func(t *testing.T) string {
			return mint(t, jwt.MapClaims{"sub": "u1", "exp": now.Add(-time.Minute).Unix()})
		}, want: true},
		{name: "exp in future", token: func(t *testing.T) string {
			return mint(t, jwt.MapClaims{"sub": "u1", "exp": now.Add(time.Hour).Unix()})
		}, want: false},
		{name: "exp not numeric", token: func(t *testing.T) string {
			return mint(t, jwt.MapClaims{"sub": "u1", "exp": "tomorrow"})
		}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(now)
			require.NoError(t, s.SetTokens(context.Background(), tt.token(t), "r"))
			assert.Equal(t, tt.want, s.IsTokenExpired())
		})
	}
}

func TestExpiration(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(now)

	_, ok := s.Expiration()
	assert.False(t, ok)

	require.NoError(t, s.SetTokens(context.Background(), mint(t, jwt.MapClaims{"exp": now.Unix()}), "r"))
	exp, ok := s.Expiration()
	require.True(t, ok)
	assert.True(t, exp.Equal(now))
}

func TestDecodeClaimsNeverFails(t *testing.T) {
	s, _ := newTestStore(time.Now())
	garbage := []string{
		"",
		"abc",
		"a.b.c",
		"eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte("{not json")) + ".sig",
		"eyJhbGciOiJIUzI1NiJ9.!!!.sig",
	}
	for _, g := range garbage {
		assert.Nil(t, s.DecodeClaims(g), "input %q", g)
	}

	claims := s.DecodeClaims(mint(t, jwt.MapClaims{"sub": "42", "email": "a@b.com"}))
	require.NotNil(t, claims)
	assert.Equal(t, "a@b.com", claims.First(EmailKeys...))
}

func TestDecodeClaimsReadsPayloadOnly(t *testing.T) {
	s, _ := newTestStore(time.Now())
	seg := func(v string) string { return base64.RawURLEncoding.EncodeToString([]byte(v)) }
	payload := seg(`{"sub":"42","exp":4102444800}`)

	tokens := []struct {
		name string
		tok  string
	}{
		{name: "unregistered alg", tok: seg(`{"alg":"ES256K"}`) + "." + payload + ".sig"},
		{name: "two segments", tok: seg(`{"alg":"HS256"}`) + "." + payload},
		{name: "non-json header", tok: "header." + payload + ".sig"},
		{name: "no signature", tok: seg(`{"alg":"none"}`) + "." + payload + "."},
	}
	for _, tt := range tokens {
		t.Run(tt.name, func(t *testing.T) {
			claims := s.DecodeClaims(tt.tok)
			require.NotNil(t, claims)
			assert.Equal(t, "42", claims.First(UserIDKeys...))

			require.NoError(t, s.SetTokens(context.Background(), tt.tok, "r"))
			assert.Equal(t, "42", s.UserID())
			assert.False(t, s.IsTokenExpired())
		})
	}

	assert.Nil(t, s.DecodeClaims(seg(`{"alg":"HS256"}`)+"."+seg("null")+".sig"))
}

func TestUserIDTriesCandidateKeys(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{name: "nameid wins over sub", claims: jwt.MapClaims{"nameid": "n1", "sub": "s1"}, want: "n1"},
		{name: "sub", claims: jwt.MapClaims{"sub": "s1"}, want: "s1"},
		{name: "ws-federation uri", claims: jwt.MapClaims{
			"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier": "w1",
		}, want: "w1"},
		{name: "numeric uid", claims: jwt.MapClaims{"uid": 17}, want: "17"},
		{name: "empty string skipped", claims: jwt.MapClaims{"nameid": "", "userId": "u9"}, want: "u9"},
		{name: "none", claims: jwt.MapClaims{"email": "a@b.com"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(time.Now())
			require.NoError(t, s.SetTokens(context.Background(), mint(t, tt.claims), "r"))
			assert.Equal(t, tt.want, s.UserID())
		})
	}
}

func TestClaimsRoles(t *testing.T) {
	assert.Equal(t, []string{"Admin"}, Claims{"role": "Admin"}.Roles())
	assert.Equal(t, []string{"Admin", "User"}, Claims{"roles": []any{"Admin", "User"}}.Roles())
	assert.Equal(t, []string{"User"}, Claims{
		"http://schemas.microsoft.com/ws/2008/06/identity/claims/role": []any{"User", 3},
	}.Roles())
	assert.Nil(t, Claims{}.Roles())
}
