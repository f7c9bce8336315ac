package http

import (
	"github.com/ExamTrust/ProctorGate/pkg/app/monitor"
	"github.com/ExamTrust/ProctorGate/pkg/domain/session"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type endMonitoringHandler struct {
	logger   *logrus.Logger
	registry *monitor.Registry
}

func NewEndMonitoringHandler(logger *logrus.Logger, registry *monitor.Registry) Handler {
	return &endMonitoringHandler{
		logger:   logger,
		registry: registry,
	}
}

// Handle ends a monitoring session. Ending an unknown or already
// ended session still returns 204 so retries are harmless.
func (h *endMonitoringHandler) Handle(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id is required"})
	}

	if err := h.registry.EndSession(c.Context(), sessionID, session.EndReasonExplicit); err != nil {
		h.logger.WithError(err).WithField("session_id", sessionID).Error("failed to end session")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.SendStatus(fiber.StatusNoContent)
}
