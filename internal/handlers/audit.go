package handlers

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/circles/backend/internal/middleware"
	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/internal/services"
	"github.com/circles/backend/pkg/logger"
	"github.com/circles/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const maxAuditRows = 10000

type AuditHandler struct {
	DB      *gorm.DB
	Audit   *services.AuditService
	Timeout time.Duration
}

func NewAuditHandler(db *gorm.DB, audit *services.AuditService, timeout time.Duration) *AuditHandler {
	return &AuditHandler{DB: db, Audit: audit, Timeout: timeout}
}

// ExportMyLog returns the caller's own audit trail as CSV or JSON.
func (h *AuditHandler) ExportMyLog(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	format := strings.ToLower(strings.TrimSpace(c.Query("format", "csv")))
	if format != "csv" && format != "json" {
		return utils.Error(c, fiber.StatusBadRequest, "format must be csv or json")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	var logs []models.AuditLog
	if err := h.DB.WithContext(ctx).Where("actor_id = ?", currentUser.ID).
		Order("created_at DESC").
		Limit(maxAuditRows).
		Find(&logs).Error; err != nil {
		return respondError(c, err, "audit_export_mine")
	}

	if format == "json" {
		c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-log.json"))
		return utils.Success(c, fiber.StatusOK, logs)
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-log.csv"))

	writer := csv.NewWriter(c.Response().BodyWriter())
	_ = writer.Write([]string{"Timestamp", "Action", "Resource Type", "Resource ID", "IP Address", "Details"})

	for _, log := range logs {
		resourceID := ""
		if log.ResourceID != nil {
			resourceID = log.ResourceID.String()
		}

		_ = writer.Write([]string{
			log.CreatedAt.Format(time.RFC3339),
			log.Action,
			log.ResourceType,
			resourceID,
			log.IPAddress,
			formatDetails(log.Details),
		})
	}

	writer.Flush()
	return writer.Error()
}

// Export ships every row written since the last run to object storage.
func (h *AuditHandler) Export(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if h.Audit == nil || h.Audit.Storage == nil {
		return utils.Error(c, fiber.StatusNotFound, "audit export is not configured")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	count, err := h.Audit.Export(ctx)
	if err != nil {
		return respondError(c, err, "audit_export")
	}

	logger.InfoWithUser(currentUser.ID.String(), "audit_export_triggered", map[string]interface{}{
		"exported": count,
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"exported": count})
}

func formatDetails(details map[string]interface{}) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, "; ")
}
