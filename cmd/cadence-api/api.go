package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/funnelworks/cadence/pkg/engine"
	"github.com/funnelworks/cadence/pkg/web"
)

type API struct {
	logger  *slog.Logger
	service *engine.Service
}

func NewAPI(logger *slog.Logger, service *engine.Service) *API {
	return &API{
		logger:  logger,
		service: service,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.service)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Cadence API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)

	app.Post("/presets/import", handlers.ImportPreset)
	app.Post("/notify", handlers.Notify)

	q := app.Group("/queue")
	q.Get("/failed", handlers.GetFailedEntries)
	q.Delete("/failed", handlers.PurgeFailedEntries)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
