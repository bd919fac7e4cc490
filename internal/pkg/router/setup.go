package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/membergate/membergate/internal/pkg/billing"
	"github.com/membergate/membergate/internal/pkg/config"
	"github.com/membergate/membergate/internal/pkg/sweep"
	"github.com/membergate/membergate/internal/pkg/telegram"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps carries the collaborators the route handlers need.
type Deps struct {
	Config   *config.Config
	Billing  *billing.Service
	Engine   *sweep.Engine
	Telegram *telegram.Client
}

// InstallRouter wires all route groups. The HTTP router runs first so the
// controllers are initialized before the admin API registers its handlers.
func InstallRouter(app *fiber.App, deps Deps) {
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
