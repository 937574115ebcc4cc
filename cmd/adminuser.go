package cmd

import (
	"fmt"

	"example.com/fdms/services/admin/internal/core"
	"example.com/fdms/services/admin/internal/infrastructure"
	"github.com/spf13/cobra"
)

var (
	adminUsername string
	adminPassword string
	adminRole     string
)

// createAdminCmd registers an admin account from the command line. Account
// management is deliberately not exposed over HTTP.
var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account",
	Long:  `Registers a new administrator account for the control plane API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreateAdmin(cmd)
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminUsername, "username", "", "account username (required)")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "account password (required)")
	createAdminCmd.Flags().StringVar(&adminRole, "role", core.RoleAdmin, "account role (admin or operator)")
	createAdminCmd.MarkFlagRequired("username")
	createAdminCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(createAdminCmd)
}

func runCreateAdmin(cmd *cobra.Command) error {
	db, err := infrastructure.NewDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	services, err := core.NewServiceRegistry(core.ServiceConfig{
		Store:   core.NewDataStore(db.DB),
		Logger:  logger,
		Auth:    cfg.Auth,
		Gateway: cfg.Gateway,
	})
	if err != nil {
		return err
	}

	user, err := services.Auth.CreateUser(cmd.Context(), adminUsername, adminPassword, adminRole)
	if err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	logger.WithField("username", user.Username).WithField("role", user.Role).
		Info("Admin account created")
	return nil
}
