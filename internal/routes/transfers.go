package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/canopy-ledger/canopy_ledger/internal/transfer"
)

// RegisterTransferRoutes wires transfer and token endpoints.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler) {
	group := r.Group("/transfers")
	group.Post("", h.Send)
	group.Get("", h.List)
	group.Get("/:id", h.Get)
	group.Post("/:id/fulfill", h.Fulfill)
	group.Post("/:id/decline", h.Decline)
	group.Delete("/:id", h.Cancel)
	group.Get("/:id/tokens", h.TransferTokens)

	r.Get("/tokens", h.Tokens)
	r.Get("/tokens/:id", h.Token)
}
