package handlers

import (
	"github.com/circles/backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

// Routes bundles the handlers mounted under /api.
type Routes struct {
	Auth         *AuthHandler
	SSO          *SSOHandler
	Users        *UsersHandler
	Groups       *GroupsHandler
	JoinRequests *JoinRequestsHandler
	Audit        *AuditHandler
	Middleware   *middleware.AuthMiddleware
}

func (r *Routes) Register(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	requireAuth := r.Middleware.RequireAuth
	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", r.Auth.Register)
	authRoutes.Post("/login", r.Auth.Login)
	authRoutes.Post("/ldap/login", r.SSO.LDAPLogin)
	authRoutes.Get("/google", r.SSO.GoogleRedirect)
	authRoutes.Get("/google/callback", r.SSO.GoogleCallback)
	authRoutes.Get("/me", requireAuth, r.Auth.Me)
	authRoutes.Put("/password", requireAuth, r.Auth.ChangePassword)

	userRoutes := api.Group("/users", requireAuth)
	userRoutes.Get("/search", r.Users.Search)
	userRoutes.Get("/:id", r.Users.Get)

	// Static segments are registered before /:id.
	groupRoutes := api.Group("/groups", requireAuth)
	groupRoutes.Post("/", r.Groups.Create)
	groupRoutes.Get("/", r.Groups.ListAll)
	groupRoutes.Get("/public", r.Groups.ListPublic)
	groupRoutes.Get("/private", r.Groups.ListPrivate)
	groupRoutes.Get("/mine", r.Groups.ListMine)
	groupRoutes.Get("/:id", r.Groups.Get)
	groupRoutes.Patch("/:id", r.Groups.Update)
	groupRoutes.Delete("/:id", r.Groups.Delete)
	groupRoutes.Post("/:id/join", r.Groups.Join)
	groupRoutes.Post("/:id/leave", r.Groups.Leave)
	groupRoutes.Post("/:id/request-join", r.Groups.RequestJoin)
	groupRoutes.Get("/:id/join-requests", r.Groups.JoinRequests)
	groupRoutes.Post("/:id/members", r.Groups.AddMember)
	groupRoutes.Delete("/:id/members/:userId", r.Groups.RemoveMember)

	requestRoutes := api.Group("/join-requests", requireAuth)
	requestRoutes.Get("/incoming", r.JoinRequests.Incoming)
	requestRoutes.Get("/mine", r.JoinRequests.Mine)
	requestRoutes.Post("/:id/approve", r.JoinRequests.Approve)
	requestRoutes.Post("/:id/decline", r.JoinRequests.Decline)
	requestRoutes.Delete("/:id", r.JoinRequests.Withdraw)

	api.Get("/audit-log/export", requireAuth, r.Audit.ExportMyLog)
	api.Post("/admin/audit/export", requireAuth, middleware.AdminOnly, r.Audit.Export)
}
