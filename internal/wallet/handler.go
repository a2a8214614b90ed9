package wallet

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
)

// TokenCounter reports how many tokens a wallet holds. The custody ledger
// satisfies this.
type TokenCounter interface {
	CountTokens(ctx context.Context, walletID string) (int, error)
}

// Handler exposes wallet endpoints.
type Handler struct {
	service *Service
	tokens  TokenCounter
}

// NewHandler constructs a wallet handler.
func NewHandler(service *Service, tokens TokenCounter) *Handler {
	return &Handler{service: service, tokens: tokens}
}

type createRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Create registers a new root wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	w, err := h.service.Create(c.UserContext(), CreateInput{Name: req.Name, Password: req.Password})
	if err != nil {
		return fiber.NewError(apperr.StatusOf(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(walletResponse(w))
}

type createManagedRequest struct {
	Name string `json:"name"`
}

// CreateManaged registers a credential-less wallet managed by the caller.
func (h *Handler) CreateManaged(c *fiber.Ctx) error {
	var req createManagedRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	wid, _ := c.Locals("wallet_id").(string)

	w, err := h.service.CreateManaged(c.UserContext(), wid, req.Name)
	if err != nil {
		return fiber.NewError(apperr.StatusOf(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(walletResponse(w))
}

// Get returns a wallet in the caller's scope.
func (h *Handler) Get(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)

	w, err := h.service.Resolve(c.UserContext(), c.Params("id"))
	if err != nil {
		return fiber.NewError(apperr.StatusOf(err), err.Error())
	}
	controls, err := h.service.trust.HasControlOver(c.UserContext(), wid, w.ID)
	if err != nil {
		return fiber.NewError(apperr.StatusOf(err), err.Error())
	}
	if !controls {
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	}
	return c.JSON(h.withTokenCount(c, walletResponse(w), w.ID))
}

// List pages the wallets in the caller's scope, optionally filtered by a
// partial name match.
func (h *Handler) List(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)

	wallets, err := h.service.List(c.UserContext(), wid, c.Query("name"))
	if err != nil {
		return fiber.NewError(apperr.StatusOf(err), err.Error())
	}
	out := make([]fiber.Map, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, h.withTokenCount(c, walletResponse(w), w.ID))
	}
	return c.JSON(fiber.Map{"wallets": out})
}

// withTokenCount annotates a wallet payload with its token count. Counting is
// best effort: a ledger error leaves the field out rather than failing the
// request.
func (h *Handler) withTokenCount(c *fiber.Ctx, resp fiber.Map, walletID string) fiber.Map {
	if h.tokens == nil {
		return resp
	}
	if n, err := h.tokens.CountTokens(c.UserContext(), walletID); err == nil {
		resp["token_count"] = n
	}
	return resp
}

func walletResponse(w Wallet) fiber.Map {
	return fiber.Map{
		"id":         w.ID,
		"name":       w.Name,
		"created_at": w.CreatedAt,
	}
}
