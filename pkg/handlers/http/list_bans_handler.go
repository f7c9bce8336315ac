package http

import (
	"github.com/ExamTrust/ProctorGate/pkg/handlers/http/response"
	"github.com/ExamTrust/ProctorGate/pkg/infra/abuse"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type listBansHandler struct {
	logger *logrus.Logger
	bans   *abuse.BanRegistry
}

func NewListBansHandler(logger *logrus.Logger, bans *abuse.BanRegistry) Handler {
	return &listBansHandler{
		logger: logger,
		bans:   bans,
	}
}

func (h *listBansHandler) Handle(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)

	records, err := h.bans.List(c.Context(), offset, limit)
	if err != nil {
		h.logger.WithError(err).Error("failed to list bans")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(response.BanListResponse{
		Bans:  records,
		Count: len(records),
	})
}
