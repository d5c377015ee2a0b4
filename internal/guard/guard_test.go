package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mehmetcc/storefront/internal/httpx"
	"github.com/mehmetcc/storefront/internal/language"
	"github.com/mehmetcc/storefront/internal/metrics"
	"github.com/mehmetcc/storefront/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type session bool

func (s session) HasSession() bool { return bool(s) }

type roles []string

func (r roles) HasRole(role string) bool {
	for _, x := range r {
		if x == role {
			return true
		}
	}
	return false
}

func newGuard(t *testing.T, s session, r roles, lang language.Language) (*Guard, *metrics.Metrics) {
	t.Helper()
	store := storage.NewMemoryStore()
	ls := language.NewService(store, language.English, zap.NewNop())
	require.NoError(t, ls.Set(context.Background(), lang))
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return New(s, r, ls, httpx.NewContextNavigator(zap.NewNop()), m, zap.NewNop()), m
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		session  session
		held     roles
		required []string
		lang     language.Language
		want     Decision
	}{
		{
			name: "no session",
			lang: language.English,
			want: Decision{Redirect: "/en/auth/login?returnUrl=%2Forders", Reason: metrics.ReasonUnauthenticated},
		},
		{
			name:    "session without role requirement",
			session: true,
			lang:    language.English,
			want:    Decision{Allowed: true},
		},
		{
			name:     "missing role",
			session:  true,
			held:     roles{"Customer"},
			required: []string{"Admin"},
			lang:     language.Arabic,
			want:     Decision{Redirect: "/ar/unauthorized", Reason: metrics.ReasonForbiddenRole},
		},
		{
			name:     "any role suffices",
			session:  true,
			held:     roles{"Editor"},
			required: []string{"Admin", "Editor"},
			lang:     language.English,
			want:     Decision{Allowed: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newGuard(t, tt.session, tt.held, tt.lang)
			assert.Equal(t, tt.want, g.Decide(context.Background(), "/"+string(tt.lang)+"/orders", tt.required...))
		})
	}
}

func TestCheckNavigates(t *testing.T) {
	g, m := newGuard(t, false, nil, language.English)
	ctx, rec := httpx.WithRecorder(context.Background())

	assert.False(t, g.Check(ctx, "/en/profile"))
	target, ok := rec.Target()
	require.True(t, ok)
	assert.Equal(t, "/en/auth/login?returnUrl=%2Fprofile", target)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NavigationsTotal.WithLabelValues(metrics.ReasonUnauthenticated)))
}

func TestRequireMiddleware(t *testing.T) {
	g, _ := newGuard(t, true, roles{"Customer"}, language.English)
	r := chi.NewRouter()
	r.With(g.Require()).Get("/en/me", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.With(g.Require("Admin")).Get("/en/admin", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/en/me", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/en/admin", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/en/unauthorized", rec.Header().Get("Location"))
}
