package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/canopy-ledger/canopy_ledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet endpoints that require authentication.
// Root wallet registration is public and wired separately.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallets", h.List)
	r.Get("/wallets/:id", h.Get)
	r.Post("/wallets/managed", h.CreateManaged)
}
