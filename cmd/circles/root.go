package main

import (
	"fmt"
	"os"

	"github.com/circles/backend/internal/config"
	"github.com/circles/backend/pkg/logger"
	"github.com/circles/backend/pkg/utils"
	"github.com/spf13/cobra"
)

// Version is injected at build time:
//
//	go build -ldflags "-X main.Version=1.2.3" ./cmd/circles
var Version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "circles",
	Short: "Circles membership service",
	Long: `Circles runs the group membership API and its maintenance tasks.

Common commands:
  circles serve           Start the HTTP API
  circles migrate         Create or update the database schema
  circles create-admin    Add an administrator account`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger.Init(cfg.Log.Level, cfg.Log.Pretty)
		utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
