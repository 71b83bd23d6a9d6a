package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/circles/backend/internal/database"
	"github.com/circles/backend/pkg/logger"
	"github.com/spf13/cobra"
)

const adminPasswordEnv = "CIRCLES_ADMIN_PASSWORD"

var (
	flagAdminUsername string
	flagAdminFullName string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Add an administrator account",
	Long: `Add an administrator with a local password.

The password is read from the ` + adminPasswordEnv + ` environment variable
so it never appears in shell history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.TrimSpace(flagAdminUsername)
		if username == "" {
			return errors.New("--username is required")
		}
		password := os.Getenv(adminPasswordEnv)
		if password == "" {
			return fmt.Errorf("%s must be set", adminPasswordEnv)
		}
		fullName := strings.TrimSpace(flagAdminFullName)
		if fullName == "" {
			fullName = username
		}

		db, err := database.Connect(cfg.DB)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}

		admin, err := database.CreateAdmin(db, username, fullName, password)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("user %q already exists", username)
			}
			return fmt.Errorf("creating admin: %w", err)
		}

		logger.Info("admin_created", map[string]interface{}{
			"user_id":  admin.ID.String(),
			"username": admin.Username,
		})
		fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (%s)\n", admin.Username, admin.ID)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&flagAdminUsername, "username", "", "Admin username")
	createAdminCmd.Flags().StringVar(&flagAdminFullName, "full-name", "", "Display name (defaults to the username)")
	rootCmd.AddCommand(createAdminCmd)
}
