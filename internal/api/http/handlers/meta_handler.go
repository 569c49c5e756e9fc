package handlers

import "github.com/gofiber/fiber/v2"

// Endpoints lists the public ticket surface.
var Endpoints = []string{
	"GET /api/tickets",
	"POST /api/tickets",
	"GET /api/tickets/:id",
	"PATCH /api/tickets/:id",
	"POST /api/tickets/:id/comments",
}

// MetaHandler describes the running service.
type MetaHandler struct {
	name    string
	version string
}

func NewMetaHandler(name, version string) *MetaHandler {
	return &MetaHandler{name: name, version: version}
}

// Meta GET /api/_meta.
func (h *MetaHandler) Meta(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":        h.name,
		"version":     h.version,
		"description": "Helpdesk ticketing service with SLA tracking and role-based access",
		"endpoints":   Endpoints,
	})
}
