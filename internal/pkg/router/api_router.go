package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/membergate/membergate/app/controllers"
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	cfg := h.deps.Config
	if cfg.AdminPassword == "" {
		log.Warn("[Router] ADMIN_PASSWORD is empty, admin API is disabled")
		api.Use(func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin API disabled"})
		})
		return
	}

	v1 := api.Group("/v1", basicauth.New(basicauth.Config{
		Users: map[string]string{
			cfg.AdminUser: cfg.AdminPassword,
		},
	}))

	v1.Get("/subscriptions", controllers.HandleListSubscriptions)
	v1.Get("/subscriptions/grace", controllers.HandleListGracePeriod)
	v1.Get("/subscriptions/:email", controllers.HandleGetSubscription)
	v1.Put("/subscriptions", controllers.HandleUpsertSubscription)
	v1.Delete("/subscriptions/:email", controllers.HandleDeleteSubscription)

	v1.Get("/whitelist", controllers.HandleListWhitelist)
	v1.Post("/whitelist", controllers.HandleAddWhitelistEntry)
	v1.Delete("/whitelist/:member_id", controllers.HandleRemoveWhitelistEntry)

	v1.Get("/logs/removals", controllers.HandleListRemovalLogs)
	v1.Get("/logs/warnings", controllers.HandleListWarningLogs)

	v1.Post("/sweep/run", controllers.HandleTriggerSweep)

	v1.Post("/invites", controllers.HandleIssueInvites)
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}
