package http

import "github.com/gofiber/fiber/v2"

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

type HandlerTransport struct {
	// Monitoring lifecycle
	StartMonitoringHandler Handler
	EndMonitoringHandler   Handler
	ListSessionsHandler    Handler

	// Query surface
	ListSessionEventsHandler Handler

	// Bans
	ListBansHandler Handler
	UnbanHandler    Handler
}
