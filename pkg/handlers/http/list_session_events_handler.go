package http

import (
	"github.com/ExamTrust/ProctorGate/pkg/domain/securityevent"
	"github.com/ExamTrust/ProctorGate/pkg/handlers/http/response"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type listSessionEventsHandler struct {
	logger *logrus.Logger
	events securityevent.Repository
}

func NewListSessionEventsHandler(logger *logrus.Logger, events securityevent.Repository) Handler {
	return &listSessionEventsHandler{
		logger: logger,
		events: events,
	}
}

func (h *listSessionEventsHandler) Handle(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id is required"})
	}

	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 100)

	events, err := h.events.ListBySession(c.Context(), sessionID, offset, limit)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", sessionID).Error("failed to list events")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(response.EventListResponse{
		Events: events,
		Count:  len(events),
	})
}
