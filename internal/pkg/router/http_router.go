package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/membergate/membergate/app/controllers"
)

type HttpRouter struct {
	deps Deps
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	controllers.InitializeWebhookController(h.deps.Config, h.deps.Billing)
	controllers.InitializeInviteController(h.deps.Config, h.deps.Telegram)
	controllers.InitializeAdminController(h.deps.Config, h.deps.Engine)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"ok":   true,
			"name": "membergate",
			"time": time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Stripe signs every request; no rate limit here, retries must get through.
	app.Post("/webhook/stripe", controllers.HandleStripeWebhook)

	app.Post("/invites", limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
	}), controllers.HandleIssueInvites)
}

func NewHttpRouter(deps Deps) *HttpRouter {
	return &HttpRouter{deps: deps}
}
