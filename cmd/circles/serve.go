package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/circles/backend/internal/database"
	"github.com/circles/backend/internal/handlers"
	"github.com/circles/backend/internal/middleware"
	"github.com/circles/backend/internal/services"
	"github.com/circles/backend/internal/storage"
	"github.com/circles/backend/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	var uploader services.ObjectUploader
	if cfg.MinIO.Enabled {
		storageClient, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("minio initialization failed: %w", err)
		}
		if err := storageClient.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed ensuring minio bucket: %w", err)
		}
		uploader = storageClient
	}

	auditService := services.NewAuditService(db, uploader, cfg.Audit.QueueSize)
	defer auditService.Close()
	auditService.StartExporter(ctx, cfg.Audit.ExportInterval)

	var google *services.GoogleSSOService
	if cfg.Google.Enabled {
		google, err = services.NewGoogleSSOService(ctx, cfg.Google)
		if err != nil {
			return fmt.Errorf("google sign-in initialization failed: %w", err)
		}
	}

	members := services.NewMembershipStore()
	requests := services.NewJoinRequestLedger(members)
	groupService := services.NewGroupService(db, members, requests)
	workflow := services.NewMembershipWorkflow(db, members, requests)
	authService := services.NewAuthService(db)
	tokens := services.NewTokenIdentityProvider(db)
	timeout := cfg.Server.RequestTimeout

	routes := &handlers.Routes{
		Auth:         handlers.NewAuthHandler(authService, tokens, auditService, timeout),
		SSO:          handlers.NewSSOHandler(authService, tokens, services.NewLDAPService(cfg.LDAP), google, auditService, cfg.Server.FrontendURL, timeout),
		Users:        handlers.NewUsersHandler(db, timeout),
		Groups:       handlers.NewGroupsHandler(groupService, workflow, auditService, timeout),
		JoinRequests: handlers.NewJoinRequestsHandler(workflow, auditService, timeout),
		Audit:        handlers.NewAuditHandler(db, auditService, timeout),
		Middleware:   middleware.NewAuthMiddleware(tokens),
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())
	routes.Register(app)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.Info("server_starting", map[string]interface{}{
		"port":            cfg.Server.Port,
		"address":         listenAddr,
		"db_driver":       cfg.DB.Driver,
		"ldap_enabled":    cfg.LDAP.Enabled,
		"google_enabled":  cfg.Google.Enabled,
		"minio_enabled":   cfg.MinIO.Enabled,
		"request_timeout": timeout.String(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("server_shutting_down", nil)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Warn("server_shutdown_incomplete", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil
	case err := <-errCh:
		return err
	}
}
