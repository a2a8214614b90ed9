package transfer

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
	"github.com/canopy-ledger/canopy_ledger/internal/ledger"
)

// Handler exposes transfer and token endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type bundleRequest struct {
	BundleSize *float64 `json:"bundle_size"`
}

type sendRequest struct {
	SenderWallet   string         `json:"sender_wallet"`
	ReceiverWallet string         `json:"receiver_wallet"`
	Tokens         []string       `json:"tokens"`
	Bundle         *bundleRequest `json:"bundle"`
	Claim          bool           `json:"claim"`
}

// Send creates a transfer. Trusted transfers complete immediately and return
// 201; untrusted transfers are parked pending and return 202.
func (h *Handler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	wid, _ := c.Locals("wallet_id").(string)

	input := SendInput{
		ActingWalletID: wid,
		SenderWallet:   req.SenderWallet,
		ReceiverWallet: req.ReceiverWallet,
		TokenIDs:       req.Tokens,
		Claim:          req.Claim,
	}
	if req.Bundle != nil {
		input.BundleSize = req.Bundle.BundleSize
	}

	result, err := h.service.Send(c.UserContext(), input)
	if err != nil {
		return httpError(err)
	}

	status := http.StatusCreated
	if result.State == ledger.TransferPendingState {
		status = http.StatusAccepted
	}
	return c.Status(status).JSON(transferResponse(result))
}

type fulfillRequest struct {
	Tokens   []string `json:"tokens"`
	Implicit bool     `json:"implicit"`
}

// Fulfill finalizes a pending transfer.
func (h *Handler) Fulfill(c *fiber.Ctx) error {
	var req fulfillRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	wid, _ := c.Locals("wallet_id").(string)

	result, err := h.service.Fulfill(c.UserContext(), FulfillInput{
		ActingWalletID: wid,
		TransferID:     c.Params("id"),
		TokenIDs:       req.Tokens,
		Implicit:       req.Implicit,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(transferResponse(result))
}

// Decline rejects a pending transfer.
func (h *Handler) Decline(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)
	result, err := h.service.Decline(c.UserContext(), wid, c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(transferResponse(result))
}

// Cancel withdraws a pending transfer.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)
	result, err := h.service.Cancel(c.UserContext(), wid, c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(transferResponse(result))
}

// Get returns a single transfer.
func (h *Handler) Get(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)
	result, err := h.service.Get(c.UserContext(), wid, c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(transferResponse(result))
}

// List pages the caller's transfers, optionally filtered by state.
func (h *Handler) List(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)
	state := ledger.TransferState(c.Query("state"))
	start := c.QueryInt("start", 1)
	limit := c.QueryInt("limit", 0)

	transfers, err := h.service.List(c.UserContext(), wid, state, start, limit)
	if err != nil {
		return httpError(err)
	}
	out := make([]fiber.Map, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, transferResponse(t))
	}
	return c.JSON(fiber.Map{"transfers": out})
}

// TransferTokens pages the tokens referenced by a transfer.
func (h *Handler) TransferTokens(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)
	start := c.QueryInt("start", 1)
	limit := c.QueryInt("limit", 0)

	tokens, err := h.service.TokensByTransfer(c.UserContext(), wid, c.Params("id"), start, limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"tokens": tokenResponses(tokens)})
}

// Tokens pages the tokens of a wallet the caller controls. The wallet query
// parameter defaults to the caller's own wallet.
func (h *Handler) Tokens(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)
	target := c.Query("wallet")
	if target == "" {
		target = wid
	}
	start := c.QueryInt("start", 1)
	limit := c.QueryInt("limit", 0)

	tokens, err := h.service.ListTokens(c.UserContext(), wid, target, start, limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"tokens": tokenResponses(tokens)})
}

// Token returns a single token.
func (h *Handler) Token(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)
	token, err := h.service.GetToken(c.UserContext(), wid, c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(tokenResponse(token))
}

func transferResponse(t ledger.Transfer) fiber.Map {
	m := fiber.Map{
		"id":                 t.ID,
		"sender_wallet_id":   t.SenderWalletID,
		"receiver_wallet_id": t.ReceiverWalletID,
		"state":              t.State,
		"claim":              t.Claim,
		"created_at":         t.CreatedAt,
		"updated_at":         t.UpdatedAt,
	}
	if t.Bundle() {
		m["bundle_size"] = t.BundleSize
	} else {
		m["tokens"] = t.TokenIDs
	}
	return m
}

func tokenResponse(t ledger.Token) fiber.Map {
	return fiber.Map{
		"id":               t.ID,
		"wallet_id":        t.WalletID,
		"capture_id":       t.CaptureID,
		"transfer_pending": t.TransferPending,
		"created_at":       t.CreatedAt,
		"updated_at":       t.UpdatedAt,
	}
}

func tokenResponses(tokens []ledger.Token) []fiber.Map {
	out := make([]fiber.Map, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, tokenResponse(t))
	}
	return out
}

func httpError(err error) error {
	return fiber.NewError(apperr.StatusOf(err), err.Error())
}
