package http

import (
	"errors"

	"github.com/ExamTrust/ProctorGate/pkg/app/monitor"
	"github.com/ExamTrust/ProctorGate/pkg/handlers/http/request"
	"github.com/ExamTrust/ProctorGate/pkg/infra/portpool"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type startMonitoringHandler struct {
	logger   *logrus.Logger
	registry *monitor.Registry
}

func NewStartMonitoringHandler(logger *logrus.Logger, registry *monitor.Registry) Handler {
	return &startMonitoringHandler{
		logger:   logger,
		registry: registry,
	}
}

// Handle starts a monitoring session for an exam attempt. A repeated
// start for the same attempt returns the existing session with 200
// instead of 201; capacity exhaustion maps to 503 with Retry-After.
func (h *startMonitoringHandler) Handle(c *fiber.Ctx) error {
	var req request.StartMonitoringRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.WithError(err).Error("failed to bind request")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	sess, created, err := h.registry.StartSession(c.Context(), req.AttemptID, req.SubjectID)
	if err != nil {
		if errors.Is(err, portpool.ErrExhausted) {
			c.Set(fiber.HeaderRetryAfter, "30")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no monitoring capacity available"})
		}
		h.logger.WithError(err).Error("failed to start session")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(sess)
}
