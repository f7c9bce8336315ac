package http

import (
	"github.com/ExamTrust/ProctorGate/pkg/infra/abuse"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type unbanHandler struct {
	logger *logrus.Logger
	bans   *abuse.BanRegistry
}

func NewUnbanHandler(logger *logrus.Logger, bans *abuse.BanRegistry) Handler {
	return &unbanHandler{
		logger: logger,
		bans:   bans,
	}
}

// Handle lifts an active ban. Lifting an identity that is not banned
// is a no-op and still returns 204.
func (h *unbanHandler) Handle(c *fiber.Ctx) error {
	identity := c.Params("identity")
	if identity == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "identity is required"})
	}

	if err := h.bans.Lift(c.Context(), identity); err != nil {
		h.logger.WithError(err).WithField("identity", identity).Error("failed to lift ban")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.SendStatus(fiber.StatusNoContent)
}
