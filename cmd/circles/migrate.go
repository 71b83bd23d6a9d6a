package main

import (
	"fmt"

	"github.com/circles/backend/internal/database"
	"github.com/circles/backend/pkg/logger"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Connect(cfg.DB)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}
		logger.Info("migration_complete", map[string]interface{}{
			"driver": cfg.DB.Driver,
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
