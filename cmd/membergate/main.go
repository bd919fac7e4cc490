package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/membergate/membergate/internal/pkg/billing"
	"github.com/membergate/membergate/internal/pkg/cache"
	"github.com/membergate/membergate/internal/pkg/config"
	"github.com/membergate/membergate/internal/pkg/database"
	"github.com/membergate/membergate/internal/pkg/env"
	"github.com/membergate/membergate/internal/pkg/router"
	"github.com/membergate/membergate/internal/pkg/sweep"
	"github.com/membergate/membergate/internal/pkg/telegram"
)

func main() {
	app, manager := NewApplication()
	manager.Start()
	defer manager.Stop()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *sweep.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	cfg := config.Load()
	db := database.GetDB()

	billingSvc := billing.NewService(cfg, billing.NewRepository(db), billing.NewRedisSeenCache(24*time.Hour))

	client := telegram.NewClientFromConfig(cfg)
	engine := sweep.NewEngine(cfg, sweep.NewStore(db), client, client)
	manager := sweep.NewManager(cfg, engine, billingSvc)

	app := fiber.New(fiber.Config{
		AppName:     "membergate",
		ReadTimeout: 30 * time.Second,
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, router.Deps{
		Config:   cfg,
		Billing:  billingSvc,
		Engine:   engine,
		Telegram: client,
	})

	return app, manager
}
