package handlers

import (
	"encoding/json"
	"time"

	"github.com/circles/backend/internal/middleware"
	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/internal/services"
	"github.com/circles/backend/pkg/logger"
	"github.com/circles/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type GroupsHandler struct {
	Groups   *services.GroupService
	Workflow *services.MembershipWorkflow
	Audit    *services.AuditService
	Timeout  time.Duration
}

func NewGroupsHandler(groups *services.GroupService, workflow *services.MembershipWorkflow, audit *services.AuditService, timeout time.Duration) *GroupsHandler {
	return &GroupsHandler{Groups: groups, Workflow: workflow, Audit: audit, Timeout: timeout}
}

type createGroupRequest struct {
	Name       string `json:"name"`
	Visibility string `json:"visibility"`
}

type addMemberRequest struct {
	UserID string `json:"userID"`
}

func (h *GroupsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Visibility == "" {
		req.Visibility = string(models.GroupVisibilityPublic)
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	group, err := h.Groups.Create(ctx, req.Name, models.GroupVisibility(req.Visibility), currentUser.ID)
	if err != nil {
		return respondError(c, err, "group_create")
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_created", map[string]interface{}{
		"group_id":   group.ID.String(),
		"group_name": group.Name,
		"visibility": string(group.Visibility),
	})
	recordAudit(h.Audit, c, currentUser.ID, "group.create", "group", &group.ID, map[string]interface{}{
		"group_name": group.Name,
		"visibility": string(group.Visibility),
	})

	return utils.Success(c, fiber.StatusCreated, groupView(*group, 1))
}

func (h *GroupsHandler) ListAll(c *fiber.Ctx) error {
	return h.list(c, services.GroupFilter{})
}

func (h *GroupsHandler) ListPublic(c *fiber.Ctx) error {
	return h.list(c, services.GroupFilter{Visibility: models.GroupVisibilityPublic})
}

func (h *GroupsHandler) ListPrivate(c *fiber.Ctx) error {
	return h.list(c, services.GroupFilter{Visibility: models.GroupVisibilityPrivate})
}

func (h *GroupsHandler) ListMine(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return h.list(c, services.GroupFilter{MemberID: currentUser.ID})
}

func (h *GroupsHandler) list(c *fiber.Ctx, filter services.GroupFilter) error {
	p := utils.ParsePagination(c)

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	summaries, total, err := h.Groups.List(ctx, filter, p)
	if err != nil {
		return respondError(c, err, "group_list")
	}
	return utils.Paginated(c, groupSummaryViews(summaries), p.Page, p.Limit, total)
}

func (h *GroupsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	detail, err := h.Groups.Get(ctx, groupID, currentUser.ID)
	if err != nil {
		return respondError(c, err, "group_get")
	}
	return utils.Success(c, fiber.StatusOK, groupDetailView(detail))
}

// Update accepts a partial body. Only name is writable; a visibility key
// is passed through so the service can reject it.
func (h *GroupsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(c.Body(), &raw); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	var patch services.GroupPatch
	if value, ok := raw["name"]; ok {
		var name string
		if err := json.Unmarshal(value, &name); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "name must be a string")
		}
		patch.Name = &name
	}
	if value, ok := raw["visibility"]; ok {
		visibility := string(value)
		patch.Visibility = &visibility
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	group, err := h.Groups.Update(ctx, groupID, currentUser.ID, patch)
	if err != nil {
		return respondError(c, err, "group_update")
	}

	recordAudit(h.Audit, c, currentUser.ID, "group.update", "group", &group.ID, map[string]interface{}{
		"group_name": group.Name,
	})

	detail, err := h.Groups.Get(ctx, group.ID, currentUser.ID)
	if err != nil {
		return respondError(c, err, "group_update")
	}
	return utils.Success(c, fiber.StatusOK, groupDetailView(detail))
}

func (h *GroupsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	group, err := h.Groups.Delete(ctx, groupID, currentUser.ID)
	if err != nil {
		return respondError(c, err, "group_delete")
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_deleted", map[string]interface{}{
		"group_id":   groupID.String(),
		"group_name": group.Name,
	})
	recordAudit(h.Audit, c, currentUser.ID, "group.delete", "group", &groupID, map[string]interface{}{
		"group_name": group.Name,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "group deleted"})
}

func (h *GroupsHandler) Join(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	detail, err := h.Workflow.Join(ctx, groupID, currentUser.ID)
	if err != nil {
		return respondError(c, err, "group_join")
	}

	recordAudit(h.Audit, c, currentUser.ID, "group.join", "group", &groupID, map[string]interface{}{
		"group_name": detail.Group.Name,
	})
	return utils.Success(c, fiber.StatusOK, groupDetailView(detail))
}

func (h *GroupsHandler) Leave(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	if err := h.Workflow.Leave(ctx, groupID, currentUser.ID); err != nil {
		return respondError(c, err, "group_leave")
	}

	recordAudit(h.Audit, c, currentUser.ID, "group.leave", "group", &groupID, nil)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "left group"})
}

func (h *GroupsHandler) RequestJoin(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	request, err := h.Workflow.RequestJoin(ctx, groupID, currentUser.ID)
	if err != nil {
		return respondError(c, err, "join_request_create")
	}

	recordAudit(h.Audit, c, currentUser.ID, "join_request.create", "join_request", &request.ID, map[string]interface{}{
		"group_id": groupID.String(),
	})
	return utils.Success(c, fiber.StatusCreated, joinRequestView(request))
}

func (h *GroupsHandler) JoinRequests(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	details, err := h.Workflow.GroupRequests(ctx, groupID, currentUser.ID)
	if err != nil {
		return respondError(c, err, "join_request_list")
	}
	return utils.Success(c, fiber.StatusOK, joinRequestDetailViews(details))
}

// AddMember adds a user to a private group on behalf of any member.
func (h *GroupsHandler) AddMember(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	targetID, err := parseUUID(req.UserID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid userID")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	detail, err := h.Workflow.AddToPrivate(ctx, groupID, currentUser.ID, targetID)
	if err != nil {
		return respondError(c, err, "group_member_add")
	}

	recordAudit(h.Audit, c, currentUser.ID, "group.member_add", "group", &groupID, map[string]interface{}{
		"group_name":     detail.Group.Name,
		"target_user_id": targetID.String(),
	})
	return utils.Success(c, fiber.StatusOK, groupDetailView(detail))
}

func (h *GroupsHandler) RemoveMember(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	targetID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	if err := h.Workflow.RemoveMember(ctx, groupID, currentUser.ID, targetID); err != nil {
		return respondError(c, err, "group_member_remove")
	}

	recordAudit(h.Audit, c, currentUser.ID, "group.member_remove", "group", &groupID, map[string]interface{}{
		"target_user_id": targetID.String(),
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "member removed"})
}
