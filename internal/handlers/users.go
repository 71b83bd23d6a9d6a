package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/circles/backend/internal/middleware"
	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/pkg/logger"
	"github.com/circles/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

type UsersHandler struct {
	DB      *gorm.DB
	Timeout time.Duration
}

func NewUsersHandler(db *gorm.DB, timeout time.Duration) *UsersHandler {
	return &UsersHandler{DB: db, Timeout: timeout}
}

// Search finds users by username or full name so members can pick someone
// to add to a private group.
func (h *UsersHandler) Search(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	search := strings.TrimSpace(c.Query("search"))
	limit := c.QueryInt("limit", defaultSearchLimit)
	if limit < 1 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	if search != "" && currentUser != nil {
		logger.InfoWithUser(currentUser.ID.String(), "user_search", map[string]interface{}{
			"query": search,
			"limit": limit,
		})
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	query := h.DB.WithContext(ctx).Model(&models.User{})
	if search != "" {
		searchValue := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(full_name) LIKE ?", searchValue, searchValue)
	}

	var users []models.User
	if err := query.Order("username ASC").Limit(limit).Find(&users).Error; err != nil {
		return respondError(c, err, "user_search")
	}

	views := make([]MemberView, 0, len(users))
	for _, u := range users {
		views = append(views, memberView(u))
	}
	return utils.Success(c, fiber.StatusOK, views)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	var user models.User
	if err := h.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return respondError(c, err, "user_get")
	}

	return utils.Success(c, fiber.StatusOK, profileView(user))
}
