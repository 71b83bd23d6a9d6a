package handlers

import (
	"errors"
	"time"

	"github.com/circles/backend/internal/middleware"
	"github.com/circles/backend/internal/services"
	"github.com/circles/backend/pkg/logger"
	"github.com/circles/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	Auth    *services.AuthService
	Tokens  *services.TokenIdentityProvider
	Audit   *services.AuditService
	Timeout time.Duration
}

func NewAuthHandler(auth *services.AuthService, tokens *services.TokenIdentityProvider, audit *services.AuditService, timeout time.Duration) *AuthHandler {
	return &AuthHandler{Auth: auth, Tokens: tokens, Audit: audit, Timeout: timeout}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	PhoneNo  string `json:"phoneNo"`
	Email    string `json:"email"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	user, err := h.Auth.Register(ctx, services.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
		PhoneNo:  req.PhoneNo,
		Email:    req.Email,
	})
	if err != nil {
		return respondError(c, err, "user_register")
	}

	token, err := h.Tokens.Issue(user)
	if err != nil {
		return respondError(c, err, "token_issue")
	}

	recordAudit(h.Audit, c, user.ID, "user.register", "user", &user.ID, map[string]interface{}{
		"username": user.Username,
	})
	return utils.Success(c, fiber.StatusCreated, AuthView{Token: token, User: userView(user)})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	user, err := h.Auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			logger.Warn("login_failed", map[string]interface{}{
				"username": req.Username,
				"ip":       c.IP(),
			})
		}
		return respondError(c, err, "user_login")
	}

	token, err := h.Tokens.Issue(user)
	if err != nil {
		return respondError(c, err, "token_issue")
	}

	recordAudit(h.Audit, c, user.ID, "user.login", "user", &user.ID, map[string]interface{}{
		"provider": string(user.AuthProvider),
	})
	return utils.Success(c, fiber.StatusOK, AuthView{Token: token, User: userView(user)})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, userView(currentUser))
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, currentUser.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return respondError(c, err, "password_change")
	}

	recordAudit(h.Audit, c, currentUser.ID, "user.password_change", "user", &currentUser.ID, nil)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}
