package main

import (
	"github.com/mehmetcc/storefront/internal/config"
	"github.com/mehmetcc/storefront/internal/database"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply storage migrations",
	Long:  `Create or upgrade the client_storage table of the sqlite or postgres storage driver.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		driver := cfg.StorageConfig.Driver
		if driver != config.StorageSQLite && driver != config.StoragePostgres {
			logger.Info("storage driver has no migrations", zap.String("driver", driver))
			return nil
		}

		db, err := database.Init(cmd.Context(), cfg.StorageConfig, cfg.DbConfig)
		if err != nil {
			logger.Error("failed to initialize database", zap.Error(err))
			return err
		}
		defer db.Close()

		database.SetMigrationLogger(logger)
		if err := database.Migrate(cmd.Context(), db, database.Dialect(driver)); err != nil {
			logger.Error("failed to migrate database", zap.Error(err))
			return err
		}
		logger.Info("storage migrated", zap.String("driver", driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
