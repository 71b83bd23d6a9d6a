package handlers

import (
	"context"
	"time"

	"github.com/circles/backend/internal/middleware"
	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/internal/services"
	"github.com/circles/backend/pkg/logger"
	"github.com/circles/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type JoinRequestsHandler struct {
	Workflow *services.MembershipWorkflow
	Audit    *services.AuditService
	Timeout  time.Duration
}

func NewJoinRequestsHandler(workflow *services.MembershipWorkflow, audit *services.AuditService, timeout time.Duration) *JoinRequestsHandler {
	return &JoinRequestsHandler{Workflow: workflow, Audit: audit, Timeout: timeout}
}

// Incoming lists pending requests for every group the caller owns.
func (h *JoinRequestsHandler) Incoming(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	details, err := h.Workflow.IncomingRequests(ctx, currentUser.ID)
	if err != nil {
		return respondError(c, err, "join_request_incoming")
	}
	return utils.Success(c, fiber.StatusOK, joinRequestDetailViews(details))
}

func (h *JoinRequestsHandler) Mine(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	details, err := h.Workflow.MyRequests(ctx, currentUser.ID)
	if err != nil {
		return respondError(c, err, "join_request_mine")
	}
	return utils.Success(c, fiber.StatusOK, joinRequestDetailViews(details))
}

func (h *JoinRequestsHandler) Approve(c *fiber.Ctx) error {
	return h.decide(c, h.Workflow.Approve, "join_request.approve")
}

func (h *JoinRequestsHandler) Decline(c *fiber.Ctx) error {
	return h.decide(c, h.Workflow.Decline, "join_request.decline")
}

type decideFunc func(ctx context.Context, requestID, actorID uuid.UUID) (*models.JoinRequest, error)

func (h *JoinRequestsHandler) decide(c *fiber.Ctx, decide decideFunc, action string) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	requestID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid join request id")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	request, err := decide(ctx, requestID, currentUser.ID)
	if err != nil {
		return respondError(c, err, "join_request_decide")
	}

	logger.InfoWithUser(currentUser.ID.String(), "join_request_decided", map[string]interface{}{
		"request_id": request.ID.String(),
		"group_id":   request.GroupID.String(),
		"status":     string(request.Status),
	})
	recordAudit(h.Audit, c, currentUser.ID, action, "join_request", &request.ID, map[string]interface{}{
		"group_id":     request.GroupID.String(),
		"requester_id": request.UserID.String(),
	})
	return utils.Success(c, fiber.StatusOK, joinRequestView(request))
}

func (h *JoinRequestsHandler) Withdraw(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	requestID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid join request id")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	request, err := h.Workflow.WithdrawRequest(ctx, requestID, currentUser.ID)
	if err != nil {
		return respondError(c, err, "join_request_withdraw")
	}

	recordAudit(h.Audit, c, currentUser.ID, "join_request.withdraw", "join_request", &request.ID, map[string]interface{}{
		"group_id": request.GroupID.String(),
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "join request withdrawn"})
}
