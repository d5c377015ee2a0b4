package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/mehmetcc/storefront/internal/api"
	"github.com/mehmetcc/storefront/internal/auth"
	"github.com/mehmetcc/storefront/internal/cart"
	"github.com/mehmetcc/storefront/internal/config"
	"github.com/mehmetcc/storefront/internal/gateway"
	"github.com/mehmetcc/storefront/internal/guard"
	"github.com/mehmetcc/storefront/internal/httpx"
	"github.com/mehmetcc/storefront/internal/language"
	"github.com/mehmetcc/storefront/internal/metrics"
	"github.com/mehmetcc/storefront/internal/storage"
	"github.com/mehmetcc/storefront/internal/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var quiet bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the storefront gateway",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if !quiet {
			figure.NewFigure(appname, "cybermedium", true).Print()
			fmt.Println()
		}
		return serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	serveCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the startup banner")
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	durable, closeStorage, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", zap.String("driver", cfg.StorageConfig.Driver), zap.Error(err))
		return err
	}
	defer func() {
		if err := closeStorage(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()
	session := storage.NewMemoryStore()

	/** transport */
	meta, err := httpx.LoadDeviceMeta(ctx, durable, cfg.AppConfig.Version)
	if err != nil {
		return fmt.Errorf("load device id: %w", err)
	}
	base := httpx.NewDeviceTransport(http.DefaultTransport, meta)
	jar, err := httpx.NewJar()
	if err != nil {
		return err
	}

	/** session */
	tokens := token.NewStore(durable, logger)
	if err := tokens.Load(ctx); err != nil {
		return err
	}
	account, err := api.NewClient(cfg.BackendConfig.BaseURL, &http.Client{
		Transport: base,
		Timeout:   cfg.BackendConfig.Timeout,
		Jar:       jar,
	}, logger)
	if err != nil {
		return err
	}
	coordinator := auth.NewCoordinator(account, tokens, logger)
	coordinator.Restore(ctx)

	lang, _ := language.Parse(cfg.SessionConfig.DefaultLanguage)
	languages := language.NewService(durable, lang, logger)

	/** metrics */
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	nav := httpx.NewContextNavigator(logger)
	authorizer := httpx.NewAuthorizer(base, tokens, coordinator, languages, nav, logger,
		httpx.WithSessionStorage(session),
		httpx.WithCookieJar(jar),
		httpx.WithMetrics(m),
	)
	backend, err := api.NewClient(cfg.BackendConfig.BaseURL, &http.Client{
		Transport: authorizer,
		Timeout:   cfg.BackendConfig.Timeout,
		Jar:       jar,
	}, logger)
	if err != nil {
		return err
	}

	/** cart */
	cartService := cart.NewService(backend, durable, tokens, logger)
	if err := cartService.Load(ctx); err != nil {
		logger.Warn("failed to load cart snapshot", zap.Error(err))
	}
	detach := cartService.Attach(coordinator)
	defer detach()

	router := gateway.NewRouter(gateway.Deps{
		Coordinator: coordinator,
		Tokens:      tokens,
		Cart:        cartService,
		Languages:   languages,
		Guard:       guard.New(tokens, coordinator, languages, nav, m, logger),
		Backend:     backend,
		Session:     session,
		Gatherer:    reg,
		RateLimit:   cfg.AppConfig.RateLimit,
	}, logger)
	srv := gateway.NewServer(cfg.AppConfig, router, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("application started",
			zap.String("addr", srv.Addr),
			zap.String("backend", cfg.BackendConfig.BaseURL),
			zap.String("storage", cfg.StorageConfig.Driver),
			zap.Bool("session", tokens.HasSession()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
