package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/circles/backend/internal/database"
	"github.com/circles/backend/internal/middleware"
	"github.com/circles/backend/internal/services"
	"github.com/circles/backend/pkg/logger"
	"github.com/circles/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	defaultRequestTimeout = 10 * time.Second
	retryAfterSeconds     = 1
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// requestContext bounds one request's unit of work. The caller's context
// is cancelled when the client goes away.
func requestContext(c *fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(c.UserContext(), timeout)
}

// respondError maps a service error onto the response envelope. Internal
// failures are logged and reported without detail.
func respondError(c *fiber.Ctx, err error, action string) error {
	var domainErr *services.Error
	if errors.As(err, &domainErr) {
		switch domainErr.Kind {
		case services.KindNotFound:
			return utils.Error(c, fiber.StatusNotFound, domainErr.Message)
		case services.KindForbidden:
			return utils.Error(c, fiber.StatusForbidden, domainErr.Message)
		case services.KindConflict:
			return utils.Error(c, fiber.StatusConflict, domainErr.Message)
		case services.KindBadRequest:
			return utils.Error(c, fiber.StatusBadRequest, domainErr.Message)
		case services.KindTransient:
			logger.Warn(action+"_transient", map[string]interface{}{
				"path":  c.Path(),
				"error": err.Error(),
			})
			return utils.Unavailable(c, retryAfterSeconds, "service temporarily unavailable, please retry")
		}
	}

	if database.IsTransient(err) {
		return utils.Unavailable(c, retryAfterSeconds, "service temporarily unavailable, please retry")
	}
	if errors.Is(err, services.ErrInvalidCredentials) {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	details := map[string]interface{}{"path": c.Path()}
	if user := middleware.GetCurrentUser(c); user != nil {
		logger.ErrorWithUser(user.ID.String(), action+"_failed", err, details)
	} else {
		logger.Error(action+"_failed", err, details)
	}
	return utils.Error(c, fiber.StatusInternalServerError, "internal server error")
}

func recordAudit(audit *services.AuditService, c *fiber.Ctx, actorID uuid.UUID, action, resourceType string, resourceID *uuid.UUID, details map[string]interface{}) {
	if audit == nil {
		return
	}
	audit.LogAsync(services.AuditEntry{
		ActorID:      &actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		IPAddress:    c.IP(),
		RequestID:    middleware.GetRequestID(c),
	})
}
