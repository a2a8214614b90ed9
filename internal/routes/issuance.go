package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/canopy-ledger/canopy_ledger/internal/issuance"
)

// RegisterIssuanceRoutes wires the token minting endpoint.
func RegisterIssuanceRoutes(r fiber.Router, h *issuance.Handler) {
	r.Post("/tokens/issue", h.Issue)
}
