package cmd

import (
	"context"
	"fmt"

	"example.com/fdms/services/admin/internal/core"
	"example.com/fdms/services/admin/internal/infrastructure"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  `Applies all pending database migrations to ensure the schema is up to date.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrations(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrations(ctx context.Context) error {
	logger.Info("Running database migrations...")

	// Connect to database
	db, err := infrastructure.NewDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Auto-migrate all models
	logger.Info("Migrating models...")

	for _, model := range core.Models() {
		if err := db.Migrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
		logger.Infof("Migrated %T", model)
	}

	if err := seedBootstrapAdmin(ctx, db); err != nil {
		logger.WithError(err).Warn("Failed to seed bootstrap admin account")
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// seedBootstrapAdmin creates the first admin account so the API is usable
// right after a fresh migration. Skipped once any account exists or when no
// bootstrap password is configured.
func seedBootstrapAdmin(ctx context.Context, db *infrastructure.Database) error {
	store := core.NewDataStore(db.DB)

	count, err := store.CountAdminUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if cfg.Auth.BootstrapPassword == "" {
		logger.Warn("No admin accounts exist and no bootstrap password configured; use the create-admin command")
		return nil
	}

	services, err := core.NewServiceRegistry(core.ServiceConfig{
		Store:   store,
		Logger:  logger,
		Auth:    cfg.Auth,
		Gateway: cfg.Gateway,
	})
	if err != nil {
		return err
	}

	user, err := services.Auth.CreateUser(ctx, cfg.Auth.BootstrapUsername, cfg.Auth.BootstrapPassword, core.RoleAdmin)
	if err != nil {
		return err
	}

	logger.WithField("username", user.Username).Info("Created bootstrap admin account")
	return nil
}
