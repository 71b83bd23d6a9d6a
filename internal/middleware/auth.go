package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/internal/services"
	"github.com/circles/backend/pkg/logger"
	"github.com/circles/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const (
	currentUserKey = "currentUser"
	verifyTimeout  = 5 * time.Second
)

type AuthMiddleware struct {
	Identity services.IdentityProvider
}

func NewAuthMiddleware(identity services.IdentityProvider) *AuthMiddleware {
	return &AuthMiddleware{Identity: identity}
}

func CORS(allowedOrigins []string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: strings.Join(allowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		logger.Warn("auth_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if token == authHeader || token == "" {
		logger.Warn("auth_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), verifyTimeout)
	defer cancel()

	user, err := a.Identity.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, services.ErrTransient) {
			return utils.Unavailable(c, 1, "authentication temporarily unavailable")
		}
		logger.Warn("auth_verify_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	c.Locals(currentUserKey, user)
	c.Locals("userID", user.ID.String())
	return c.Next()
}

func AdminOnly(c *fiber.Ctx) error {
	user := GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if !user.IsAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "admin access required")
	}
	return c.Next()
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	user, ok := c.Locals(currentUserKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
