package middleware

import (
	"time"

	"github.com/circles/backend/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger tags every request with an id and logs one event per
// request once the handler chain has finished.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := c.Get(requestIDHeader)
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		c.Locals("requestID", requestID)
		c.Set(requestIDHeader, requestID)

		err := c.Next()

		statusCode := c.Response().StatusCode()
		details := map[string]interface{}{
			"method":       c.Method(),
			"path":         c.Path(),
			"status_code":  statusCode,
			"latency_ms":   time.Since(start).Milliseconds(),
			"user_agent":   c.Get(fiber.HeaderUserAgent),
			"ip":           c.IP(),
			"request_body": logger.GetRequestBodySummary(c),
			"request_id":   requestID,
		}

		userID := logger.GetUserIDFromContext(c)
		switch {
		case statusCode >= 500:
			if userID != nil {
				logger.ErrorWithUser(*userID, "http_request", err, details)
			} else {
				logger.Error("http_request", err, details)
			}
		case statusCode >= 400:
			if userID != nil {
				logger.WarnWithUser(*userID, "http_request", details)
			} else {
				logger.Warn("http_request", details)
			}
		default:
			if userID != nil {
				logger.InfoWithUser(*userID, "http_request", details)
			} else {
				logger.Info("http_request", details)
			}
		}

		return err
	}
}

// SecurityLogger records denied and not-found responses separately so
// probing shows up in one place.
func SecurityLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		var reason string
		switch c.Response().StatusCode() {
		case fiber.StatusUnauthorized:
			reason = "unauthenticated"
		case fiber.StatusForbidden:
			reason = "access_denied"
		case fiber.StatusNotFound:
			reason = "not_found"
		default:
			return err
		}

		details := map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
			"ip":     c.IP(),
			"reason": reason,
		}
		if userID := logger.GetUserIDFromContext(c); userID != nil {
			logger.WarnWithUser(*userID, reason, details)
		} else {
			logger.Warn(reason, details)
		}
		return err
	}
}

func GetRequestID(c *fiber.Ctx) string {
	requestID, _ := c.Locals("requestID").(string)
	return requestID
}
