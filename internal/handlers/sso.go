package handlers

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/internal/services"
	"github.com/circles/backend/pkg/logger"
	"github.com/circles/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const (
	oauthStateCookie = "circles_oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

// SSOHandler signs users in through LDAP or Google. Google is nil when it
// is not configured.
type SSOHandler struct {
	Auth        *services.AuthService
	Tokens      *services.TokenIdentityProvider
	LDAP        *services.LDAPService
	Google      *services.GoogleSSOService
	Audit       *services.AuditService
	FrontendURL string
	Timeout     time.Duration
}

func NewSSOHandler(auth *services.AuthService, tokens *services.TokenIdentityProvider, ldap *services.LDAPService, google *services.GoogleSSOService, audit *services.AuditService, frontendURL string, timeout time.Duration) *SSOHandler {
	return &SSOHandler{
		Auth:        auth,
		Tokens:      tokens,
		LDAP:        ldap,
		Google:      google,
		Audit:       audit,
		FrontendURL: strings.TrimRight(frontendURL, "/"),
		Timeout:     timeout,
	}
}

func (h *SSOHandler) LDAPLogin(c *fiber.Ctx) error {
	if h.LDAP == nil || !h.LDAP.IsEnabled() {
		return utils.Error(c, fiber.StatusNotFound, "LDAP sign-in is not enabled")
	}

	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	profile, err := h.LDAP.Authenticate(ctx, strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			logger.Warn("ldap_login_failed", map[string]interface{}{
				"username": req.Username,
				"ip":       c.IP(),
			})
			return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
		}
		logger.Error("ldap_login_error", err, map[string]interface{}{"username": req.Username})
		return utils.Error(c, fiber.StatusBadGateway, "directory service unavailable")
	}

	user, err := h.Auth.FindOrCreateExternal(ctx, *profile)
	if err != nil {
		return respondError(c, err, "ldap_login")
	}

	token, err := h.Tokens.Issue(user)
	if err != nil {
		return respondError(c, err, "token_issue")
	}

	recordAudit(h.Audit, c, user.ID, "user.login", "user", &user.ID, map[string]interface{}{
		"provider": string(models.AuthProviderLDAP),
	})
	return utils.Success(c, fiber.StatusOK, AuthView{Token: token, User: userView(user)})
}

// GoogleRedirect starts the authorization-code flow. The state is kept in a
// short-lived cookie and compared on callback.
func (h *SSOHandler) GoogleRedirect(c *fiber.Ctx) error {
	if h.Google == nil {
		return utils.Error(c, fiber.StatusNotFound, "Google sign-in is not enabled")
	}

	state, err := services.GenerateState()
	if err != nil {
		logger.Error("oauth_state_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "internal server error")
	}

	c.Cookie(&fiber.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(oauthStateTTL),
		HTTPOnly: true,
		Secure:   c.Protocol() == "https",
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Redirect(h.Google.AuthCodeURL(state), fiber.StatusFound)
}

func (h *SSOHandler) GoogleCallback(c *fiber.Ctx) error {
	if h.Google == nil {
		return utils.Error(c, fiber.StatusNotFound, "Google sign-in is not enabled")
	}

	expected := c.Cookies(oauthStateCookie)
	c.ClearCookie(oauthStateCookie)

	if errMsg := c.Query("error"); errMsg != "" {
		return h.loginFailed(c, errMsg)
	}
	state := c.Query("state")
	if expected == "" || state == "" || state != expected {
		logger.Warn("oauth_state_mismatch", map[string]interface{}{"ip": c.IP()})
		return h.loginFailed(c, "invalid state")
	}
	code := c.Query("code")
	if code == "" {
		return h.loginFailed(c, "authorization code is required")
	}

	ctx, cancel := requestContext(c, h.Timeout)
	defer cancel()

	profile, err := h.Google.Exchange(ctx, code)
	if err != nil {
		if !errors.Is(err, services.ErrInvalidCredentials) {
			logger.Error("google_callback_failed", err, nil)
		}
		return h.loginFailed(c, "google sign-in failed")
	}

	user, err := h.Auth.FindOrCreateExternal(ctx, *profile)
	if err != nil {
		logger.Error("google_user_resolve_failed", err, nil)
		return h.loginFailed(c, "could not resolve account")
	}

	token, err := h.Tokens.Issue(user)
	if err != nil {
		logger.Error("token_issue_failed", err, nil)
		return h.loginFailed(c, "failed to generate token")
	}

	recordAudit(h.Audit, c, user.ID, "user.login", "user", &user.ID, map[string]interface{}{
		"provider": string(models.AuthProviderGoogle),
	})
	return c.Redirect(h.FrontendURL+"/#/login-success?token="+url.QueryEscape(token)+"&userId="+user.ID.String(), fiber.StatusFound)
}

func (h *SSOHandler) loginFailed(c *fiber.Ctx, reason string) error {
	return c.Redirect(h.FrontendURL+"/login?error="+url.QueryEscape(reason), fiber.StatusFound)
}
