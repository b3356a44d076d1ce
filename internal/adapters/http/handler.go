package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/melih/servery/internal/core/domain"
	"github.com/melih/servery/internal/core/ports"
)

type ServerHandler struct {
	service ports.ServerService
	logger  *zap.Logger
}

func NewServerHandler(service ports.ServerService, logger *zap.Logger) *ServerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServerHandler{service: service, logger: logger}
}

func (h *ServerHandler) ListServers(c *fiber.Ctx) error {
	servers, err := h.service.List(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(servers)
}

func (h *ServerHandler) CreateServer(c *fiber.Ctx) error {
	var req domain.NewServer
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	id, err := h.service.Create(c.UserContext(), req)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id": id,
	})
}

func (h *ServerHandler) GetServer(c *fiber.Ctx) error {
	id, err := domain.ParseID(c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	server, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(server)
}

func (h *ServerHandler) StopServer(c *fiber.Ctx) error {
	id, err := domain.ParseID(c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.service.Stop(c.UserContext(), id); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"id":     id,
		"status": domain.StatusStopped,
	})
}

func (h *ServerHandler) GetServerLogs(c *fiber.Ctx) error {
	id, err := domain.ParseID(c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	logs, err := h.service.Logs(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	// fasthttp closes the stream once the body is written
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendStream(logs)
}

func (h *ServerHandler) ListInstances(c *fiber.Ctx) error {
	instances, err := h.service.Instances(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(instances)
}

// fail writes the error response for err. Internal causes are logged and
// replaced by a generic message.
func (h *ServerHandler) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status >= fiber.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("request_id", requestID(c)),
			zap.Error(err))
		msg = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}
