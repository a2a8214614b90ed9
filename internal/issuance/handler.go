package issuance

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
)

// Handler exposes the token issuance endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs an issuance handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type issueRequest struct {
	Wallet   string   `json:"wallet"`
	Captures []string `json:"captures"`
}

// Issue mints tokens for verified captures into a wallet.
func (h *Handler) Issue(c *fiber.Ctx) error {
	var req issueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Issue(c.UserContext(), IssueInput{
		WalletIDOrName: req.Wallet,
		CaptureIDs:     req.Captures,
	})
	if err != nil {
		return fiber.NewError(apperr.StatusOf(err), err.Error())
	}

	ids := make([]string, 0, len(res.Tokens))
	for _, t := range res.Tokens {
		ids = append(ids, t.ID)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"wallet_id":          res.WalletID,
		"tokens":             ids,
		"registry_reference": res.RegistryReference,
		"completed_at":       res.CompletedAt,
	})
}
