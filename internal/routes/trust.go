package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/canopy-ledger/canopy_ledger/internal/trust"
)

// RegisterTrustRoutes wires trust relationship endpoints.
func RegisterTrustRoutes(r fiber.Router, h *trust.Handler) {
	group := r.Group("/trust_relationships")
	group.Post("", h.Request)
	group.Get("", h.List)
	group.Get("/requested_to_me", h.Pending)
	group.Post("/:id/accept", h.Accept)
	group.Post("/:id/decline", h.Decline)
	group.Delete("/:id", h.Cancel)
}
