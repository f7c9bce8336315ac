package http

import (
	"github.com/ExamTrust/ProctorGate/pkg/app/monitor"
	"github.com/ExamTrust/ProctorGate/pkg/handlers/http/response"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type listSessionsHandler struct {
	logger   *logrus.Logger
	registry *monitor.Registry
}

func NewListSessionsHandler(logger *logrus.Logger, registry *monitor.Registry) Handler {
	return &listSessionsHandler{
		logger:   logger,
		registry: registry,
	}
}

func (h *listSessionsHandler) Handle(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)

	sessions := h.registry.ActiveSessions(offset, limit)
	return c.Status(fiber.StatusOK).JSON(response.SessionListResponse{
		Sessions: sessions,
		Count:    len(sessions),
	})
}
