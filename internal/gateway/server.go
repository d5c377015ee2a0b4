// Package gateway serves one storefront session over HTTP for a local shell.
package gateway

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/mehmetcc/storefront/internal/api"
	"github.com/mehmetcc/storefront/internal/auth"
	"github.com/mehmetcc/storefront/internal/cart"
	"github.com/mehmetcc/storefront/internal/config"
	"github.com/mehmetcc/storefront/internal/guard"
	"github.com/mehmetcc/storefront/internal/httpx"
	"github.com/mehmetcc/storefront/internal/language"
	"github.com/mehmetcc/storefront/internal/storage"
	"github.com/mehmetcc/storefront/internal/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"moul.io/chizap"
)

// HeaderReturnPath lets the shell name the page a request was made from.
const HeaderReturnPath = "X-Return-Path"

type Deps struct {
	Coordinator auth.Coordinator
	Tokens      *token.Store
	Cart        cart.Service
	Languages   *language.Service
	Guard       *guard.Guard
	Backend     *api.Client
	Session     storage.Storage
	Gatherer    prometheus.Gatherer
	RateLimit   int
}

func NewRouter(d Deps, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(chizap.New(logger, &chizap.Opts{
		WithReferer:   true,
		WithUserAgent: true,
	}))
	r.Use(middleware.Recoverer)
	if d.RateLimit > 0 {
		r.Use(httprate.Limit(d.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				httpx.WriteError(w, http.StatusTooManyRequests, httpx.ErrorResponse[any]{
					Code:    httpx.ErrTooManyRequests,
					Message: "too many requests",
				})
			}),
		))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	authHandler := NewAuthenticationHandler(d.Coordinator, d.Tokens, d.Languages, d.Guard, d.Session, logger)
	cartHandler := NewCartHandler(d.Cart, d.Session, logger)
	backend := newProxy(d.Backend, d.Session, logger)

	r.Route("/{lang}", func(r chi.Router) {
		r.Use(withLanguage(d.Languages))
		r.Use(withPage)
		r.Get("/language", func(w http.ResponseWriter, r *http.Request) {
			lang := d.Languages.Current(r.Context())
			httpx.WriteJSON(w, http.StatusOK, languageResponse{
				Language:  string(lang),
				Direction: lang.Direction(),
			})
		})
		r.Mount("/auth", authHandler.Routes())
		r.Mount("/cart", cartHandler.Routes())
		r.Get("/api/*", backend.ServeHTTP)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { writeNotFound(w) })
	return r
}

// withLanguage rejects unknown locale prefixes and remembers the known ones.
func withLanguage(languages *language.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := language.Parse(chi.URLParam(r, "lang")); !ok {
				writeNotFound(w)
				return
			}
			languages.Detect(r.Context(), r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

// withPage gives each request its own navigation recorder and the page path
// used as returnUrl.
func withPage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := httpx.WithRecorder(r.Context())
		page := r.Header.Get(HeaderReturnPath)
		if page == "" {
			page = language.StripPrefix(r.URL.Path)
			if r.URL.RawQuery != "" {
				page += "?" + r.URL.RawQuery
			}
		}
		ctx = httpx.WithReturnPath(ctx, page)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func NewServer(cfg *config.AppConfig, handler http.Handler, logger *zap.Logger) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort("", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     zap.NewStdLog(logger),
	}
}
