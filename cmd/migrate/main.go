package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"rugroulette/internal/config"
	"rugroulette/internal/database"
	"rugroulette/internal/logging"
)

var (
	configFile string
	logger     zerolog.Logger
	cfg        *config.Config
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the rug and spin history schema",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(configFile); err != nil {
				return err
			}
			logger = logging.New(logging.Config{Level: cfg.Log.Level, Format: "console", Output: "stderr"})
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yaml)")

	root.AddCommand(upCmd(), downCmd(), versionCmd(), createCmd())
	return root
}

func withDatabase(run func(db database.Service) error) error {
	if !cfg.Database.Enabled() {
		return fmt.Errorf("DB_HOST is not set")
	}
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return run(db)
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(db database.Service) error {
				logger.Info().Str("path", cfg.Database.MigrationsPath).Msg("Running migrations")
				if err := database.RunMigrations(db.DB(), cfg.Database.MigrationsPath); err != nil {
					return err
				}
				logger.Info().Msg("Migrations completed")
				return nil
			})
		},
	}
}

func downCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(db database.Service) error {
				if err := database.RollbackMigration(db.DB(), cfg.Database.MigrationsPath); err != nil {
					return err
				}
				logger.Info().Msg("Rollback completed")
				return nil
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(db database.Service) error {
				version, dirty, err := database.GetMigrationVersion(db.DB(), cfg.Database.MigrationsPath)
				if err != nil {
					return err
				}
				if dirty {
					logger.Warn().Uint("version", version).Msg("Current version is DIRTY and needs manual intervention")
					return nil
				}
				logger.Info().Uint("version", version).Msg("Current version")
				return nil
			})
		},
	}
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new pair of migration files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			up, down, err := createMigration(cfg.Database.MigrationsPath, args[0], time.Now())
			if err != nil {
				return err
			}
			logger.Info().Str("up", up).Str("down", down).Msg("Created migration files")
			return nil
		},
	}
}

// createMigration writes the next numbered up/down pair into dir.
func createMigration(dir, name string, now time.Time) (string, string, error) {
	ups, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return "", "", err
	}
	next := len(ups) + 1

	upFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.up.sql", next, name))
	downFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.down.sql", next, name))

	upContent := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n", name, now.Format(time.RFC3339))
	if err := os.WriteFile(upFile, []byte(upContent), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to create up migration: %w", err)
	}
	downContent := fmt.Sprintf("-- Rollback: %s\n\n", name)
	if err := os.WriteFile(downFile, []byte(downContent), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to create down migration: %w", err)
	}
	return upFile, downFile, nil
}
