// Package http exposes the provisioning service over a Fiber REST API.
package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/melih/servery/internal/core/ports"
)

// RouterOptions holds the optional parts of the API.
type RouterOptions struct {
	AppName string
	Logger  *zap.Logger
	// Metrics is served on /metrics and fed by every request when set.
	Metrics interface {
		RequestObserver
		Handler() http.Handler
	}
	// Proxy runs ahead of the API routes when set.
	Proxy *ProxyHandler
}

func NewRouter(service ports.ServerService, opts RouterOptions) *fiber.App {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               opts.AppName,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(requestLogger(logger.With(zap.String("component", "http"))))
	if opts.Metrics != nil {
		app.Use(requestMetrics(opts.Metrics))
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}
	if opts.Proxy != nil {
		app.Use(opts.Proxy.ProxyRequest)
	}

	handler := NewServerHandler(service, logger.With(zap.String("component", "api")))

	api := app.Group("/api")
	v1 := api.Group("/v1")

	servers := v1.Group("/servers")
	servers.Get("/", handler.ListServers)
	servers.Post("/", handler.CreateServer)
	servers.Get("/:id", handler.GetServer)
	servers.Get("/:id/logs", handler.GetServerLogs)
	servers.Post("/:id/stop", handler.StopServer)

	v1.Get("/instances", handler.ListInstances)

	return app
}
