package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mehmetcc/storefront/internal/api"
	"github.com/mehmetcc/storefront/internal/auth"
	"github.com/mehmetcc/storefront/internal/language"
	"github.com/mehmetcc/storefront/internal/metrics"
	"github.com/mehmetcc/storefront/internal/storage"
	"github.com/mehmetcc/storefront/internal/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type backend struct {
	refreshStatus int
	refreshDelay  time.Duration
	acceptRenewed bool
	barrier       *sync.WaitGroup

	refreshCalls atomic.Int32
	orderCalls   atomic.Int32

	mu         sync.Mutex
	authHeader map[string][]string
	lastBody   string
}

func (b *backend) seen(path string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authHeader[path]...)
}

func (b *backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			b.mu.Lock()
			b.authHeader[req.URL.Path] = append(b.authHeader[req.URL.Path], req.Header.Get("Authorization"))
			b.mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/Account/Login", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		r.Post("/Account/RefreshToken", func(w http.ResponseWriter, _ *http.Request) {
			b.refreshCalls.Add(1)
			time.Sleep(b.refreshDelay)
			if b.refreshStatus != http.StatusOK {
				w.WriteHeader(b.refreshStatus)
				return
			}
			_ = json.NewEncoder(w).Encode(api.AuthenticationResponse{Token: "renewed", RefreshToken: "refresh-2"})
		})
		orders := func(w http.ResponseWriter, req *http.Request) {
			b.orderCalls.Add(1)
			if b.acceptRenewed && req.Header.Get("Authorization") == "Bearer renewed" {
				raw, _ := io.ReadAll(req.Body)
				b.mu.Lock()
				b.lastBody = string(raw)
				b.mu.Unlock()
				_, _ = w.Write([]byte(`{"ok":true}`))
				return
			}
			if b.barrier != nil {
				b.barrier.Done()
				b.barrier.Wait()
			}
			w.WriteHeader(http.StatusUnauthorized)
		}
		r.Get("/Orders", orders)
		r.Post("/Orders", orders)
		r.Get("/Products/{id}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		r.Get("/Cart", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		r.Post("/Cart", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		r.Get("/Forbidden", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	})
	return r
}

type harness struct {
	backend  *backend
	server   *httptest.Server
	tokens   *token.Store
	coord    auth.Coordinator
	lang     *language.Service
	session  *storage.MemoryStore
	jar      *Jar
	metrics  *metrics.Metrics
	client   *api.Client
	recorder *Recorder
	ctx      context.Context
}

func newHarness(t *testing.T, b *backend) *harness {
	t.Helper()
	b.authHeader = map[string][]string{}
	if b.refreshStatus == 0 {
		b.refreshStatus = http.StatusOK
	}
	srv := httptest.NewServer(b.routes())
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	durable := storage.NewMemoryStore()
	tokens := token.NewStore(durable, logger)

	account, err := api.NewClient(srv.URL+"/api", srv.Client(), logger)
	require.NoError(t, err)
	coord := auth.NewCoordinator(account, tokens, logger)

	jar, err := NewJar()
	require.NoError(t, err)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	session := storage.NewMemoryStore()
	lang := language.NewService(durable, language.English, logger)

	rt := NewAuthorizer(srv.Client().Transport, tokens, coord, lang, NewContextNavigator(logger), logger,
		WithSessionStorage(session),
		WithCookieJar(jar),
		WithMetrics(m),
	)
	client, err := api.NewClient(srv.URL+"/api", &http.Client{Transport: rt, Jar: jar}, logger)
	require.NoError(t, err)

	ctx, rec := WithRecorder(context.Background())
	return &harness{
		backend:  b,
		server:   srv,
		tokens:   tokens,
		coord:    coord,
		lang:     lang,
		session:  session,
		jar:      jar,
		metrics:  m,
		client:   client,
		recorder: rec,
		ctx:      ctx,
	}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	require.NoError(t, h.tokens.SetTokens(context.Background(), "stale", "refresh-1"))
}

func TestBearerAttachedToProtectedRequests(t *testing.T) {
	h := newHarness(t, &backend{})
	require.NoError(t, h.tokens.SetTokens(context.Background(), "renewed", "refresh-1"))
	h.backend.acceptRenewed = true

	require.NoError(t, h.client.Do(h.ctx, http.MethodGet, "/Orders", nil, nil, nil))
	assert.Equal(t, []string{"Bearer renewed"}, h.backend.seen("/api/Orders"))
}

func TestAuthEndpointsNeverCarryBearerOrRefresh(t *testing.T) {
	h := newHarness(t, &backend{})
	h.login(t)

	err := h.client.Do(h.ctx, http.MethodPost, api.PathLogin, nil, api.LoginRequest{Email: "a@b.com", Password: "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))
	assert.Equal(t, []string{""}, h.backend.seen("/api/Account/Login"))
	assert.Zero(t, h.backend.refreshCalls.Load())
	assert.Zero(t, h.recorder.Count())
	assert.True(t, h.tokens.HasSession())
}

func TestNon401PassesThrough(t *testing.T) {
	h := newHarness(t, &backend{})
	h.login(t)

	err := h.client.Do(h.ctx, http.MethodGet, "/Forbidden", nil, nil, nil)
	var se *api.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, api.KindForbidden, se.Kind)
	assert.Zero(t, h.backend.refreshCalls.Load())
	assert.Zero(t, h.recorder.Count())
}

func TestGuestCartReadIsSilent(t *testing.T) {
	h := newHarness(t, &backend{})

	err := h.client.Do(h.ctx, http.MethodGet, "/Cart", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))
	assert.Zero(t, h.recorder.Count())
	assert.Zero(t, h.backend.refreshCalls.Load())
}

func TestPublicEndpointWithStaleTokenIsSilent(t *testing.T) {
	h := newHarness(t, &backend{})
	h.login(t)

	err := h.client.Do(h.ctx, http.MethodGet, "/Products/123", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))
	assert.Zero(t, h.recorder.Count())
	assert.Zero(t, h.backend.refreshCalls.Load())
	assert.True(t, h.tokens.HasSession())
}

func TestGuestProtectedRequestRedirectsOnce(t *testing.T) {
	h := newHarness(t, &backend{})
	ctx := WithReturnPath(h.ctx, "/checkout")

	err := h.client.Do(ctx, http.MethodPost, "/Cart", nil, map[string]int{"productId": 1}, nil)
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))

	target, ok := h.recorder.Target()
	require.True(t, ok)
	assert.Equal(t, 1, h.recorder.Count())
	assert.Equal(t, "/en/auth/login?returnUrl=%2Fcheckout", target)
	assert.Zero(t, h.backend.refreshCalls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.NavigationsTotal.WithLabelValues(metrics.ReasonUnauthenticated)))
}

func TestHalfSessionIsClearedBeforeRedirect(t *testing.T) {
	h := newHarness(t, &backend{})
	require.NoError(t, h.tokens.SetTokens(context.Background(), "stale", ""))
	require.NoError(t, h.lang.Set(context.Background(), language.Arabic))

	err := h.client.Do(h.ctx, http.MethodGet, "/Orders", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))

	assert.False(t, h.tokens.IsAuthenticated())
	assert.Zero(t, h.backend.refreshCalls.Load())
	target, ok := h.recorder.Target()
	require.True(t, ok)
	assert.Equal(t, "/ar/auth/login?returnUrl=%2Fapi%2FOrders", target)
}

func TestRefreshAndRetryOnce(t *testing.T) {
	h := newHarness(t, &backend{acceptRenewed: true})
	h.login(t)

	var out map[string]bool
	require.NoError(t, h.client.Do(h.ctx, http.MethodPost, "/Orders", nil, map[string]int{"qty": 2}, &out))
	assert.True(t, out["ok"])

	assert.EqualValues(t, 1, h.backend.refreshCalls.Load())
	assert.Equal(t, []string{"Bearer stale", "Bearer renewed"}, h.backend.seen("/api/Orders"))
	assert.JSONEq(t, `{"qty":2}`, h.backend.lastBody)
	assert.Equal(t, "renewed", h.tokens.AccessToken())
	assert.Equal(t, "refresh-2", h.tokens.RefreshToken())
	assert.Zero(t, h.recorder.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RetriesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RefreshTotal.WithLabelValues(metrics.RefreshSuccess)))
}

func TestRetriedRequestIsNotRefreshedAgain(t *testing.T) {
	h := newHarness(t, &backend{})
	h.login(t)

	err := h.client.Do(h.ctx, http.MethodGet, "/Orders", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))

	assert.EqualValues(t, 1, h.backend.refreshCalls.Load())
	assert.EqualValues(t, 2, h.backend.orderCalls.Load())
	assert.Zero(t, h.recorder.Count())
	assert.True(t, h.tokens.HasSession())
}

func TestRefreshUnauthorizedTearsDownSession(t *testing.T) {
	h := newHarness(t, &backend{refreshStatus: http.StatusUnauthorized})
	h.login(t)

	var events []auth.Event
	h.coord.Subscribe(func(_ context.Context, e auth.Event) { events = append(events, e) })

	require.NoError(t, h.session.Set(context.Background(), storage.KeyReturnURL, "/orders"))
	u, err := url.Parse(h.server.URL)
	require.NoError(t, err)
	h.jar.SetCookies(u, []*http.Cookie{{Name: "auth", Value: "x"}})

	ctx := WithReturnPath(h.ctx, "/orders/7")
	err = h.client.Do(ctx, http.MethodGet, "/Orders", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))

	assert.False(t, h.tokens.IsAuthenticated())
	assert.Empty(t, h.tokens.RefreshToken())
	assert.Equal(t, []auth.Event{auth.EventLogout}, events)
	assert.Zero(t, h.session.Len())
	assert.Empty(t, h.jar.Cookies(u))

	assert.Equal(t, 1, h.recorder.Count())
	target, _ := h.recorder.Target()
	assert.Equal(t, "/en/auth/login?returnUrl=%2Forders%2F7", target)
	assert.EqualValues(t, 1, h.backend.orderCalls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TeardownsTotal))
}

func TestRefreshServerErrorKeepsSession(t *testing.T) {
	h := newHarness(t, &backend{refreshStatus: http.StatusInternalServerError})
	h.login(t)

	err := h.client.Do(h.ctx, http.MethodGet, "/Orders", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err))

	assert.Equal(t, "stale", h.tokens.AccessToken())
	assert.Equal(t, "refresh-1", h.tokens.RefreshToken())
	assert.Zero(t, h.recorder.Count())
	assert.EqualValues(t, 1, h.backend.orderCalls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RefreshTotal.WithLabelValues(metrics.RefreshError)))
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	h := newHarness(t, &backend{acceptRenewed: true, barrier: barrier, refreshDelay: 50 * time.Millisecond})
	h.login(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.client.Do(context.Background(), http.MethodGet, "/Orders", nil, nil, nil)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, h.backend.refreshCalls.Load())
	assert.Equal(t, "renewed", h.tokens.AccessToken())
}

func TestUnreplayableBodySkipsRefresh(t *testing.T) {
	h := newHarness(t, &backend{acceptRenewed: true})
	h.login(t)

	req, err := http.NewRequestWithContext(h.ctx, http.MethodPost, h.server.URL+"/api/Orders", io.NopCloser(&onceReader{data: []byte("{}")}))
	require.NoError(t, err)

	authz := NewAuthorizer(h.server.Client().Transport, h.tokens, h.coord, h.lang, NewContextNavigator(zap.NewNop()), zap.NewNop())
	resp, err := authz.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, h.backend.refreshCalls.Load())
}

type onceReader struct {
	data []byte
	done bool
}

func (r *onceReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	r.done = true
	return copy(p, r.data), nil
}
