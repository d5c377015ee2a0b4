package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mehmetcc/storefront/internal/config"
	"github.com/mehmetcc/storefront/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const appname = "storefront"

var envFile string

var rootCmd = &cobra.Command{
	Use:   appname,
	Short: "Storefront session client",
	Long: `storefront hosts one storefront session against a remote REST backend.

It keeps the access/refresh token pair, renews it when the backend answers
401, keeps the cart in sync with the session and serves all of it as a local
JSON API for a desktop or kiosk shell.

Configuration is read from a .env file and the process environment.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "env file to load before the process environment")
}

// bootstrap loads the configuration with a temporary logger and then builds
// the configured one.
func bootstrap() (*config.Config, *zap.Logger, error) {
	boot, err := zap.NewProduction()
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = boot.Sync() }()

	cfg, err := config.LoadConfig(boot, envFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogConfig.Level, cfg.LogConfig.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, logger, nil
}
