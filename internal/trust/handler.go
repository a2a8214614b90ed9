package trust

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
)

// Handler exposes trust relationship endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a trust handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type requestRequest struct {
	RequestType     string `json:"request_type"`
	RequesterWallet string `json:"requester_wallet"`
	RequesteeWallet string `json:"requestee_wallet"`
}

// Request files a new trust request on behalf of the authenticated wallet.
func (h *Handler) Request(c *fiber.Ctx) error {
	var req requestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	wid, _ := c.Locals("wallet_id").(string)

	requester := req.RequesterWallet
	if requester == "" {
		requester = wid
	}

	view, err := h.service.Request(c.UserContext(), RequestInput{
		RequestType:        RequestType(req.RequestType),
		RequesterWallet:    requester,
		RequesteeWallet:    req.RequesteeWallet,
		OriginatorWalletID: wid,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(viewResponse(view))
}

// Accept grants a pending trust request directed at the caller's scope.
func (h *Handler) Accept(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)
	view, err := h.service.Accept(c.UserContext(), c.Params("id"), wid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(viewResponse(view))
}

// Decline rejects a pending trust request directed at the caller's scope.
func (h *Handler) Decline(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)
	view, err := h.service.Decline(c.UserContext(), c.Params("id"), wid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(viewResponse(view))
}

// Cancel withdraws a pending trust request the caller originated.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)
	view, err := h.service.Cancel(c.UserContext(), c.Params("id"), wid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(viewResponse(view))
}

// List returns every relationship involving the caller's wallet.
func (h *Handler) List(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)
	views, err := h.service.ListByWallet(c.UserContext(), wid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"trust_relationships": viewResponses(views)})
}

// Pending returns the requests awaiting a decision anywhere in the caller's
// scope.
func (h *Handler) Pending(c *fiber.Ctx) error {
	wid, _ := c.Locals("wallet_id").(string)
	views, err := h.service.RequestedTo(c.UserContext(), wid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"trust_relationships": viewResponses(views)})
}

func viewResponse(v View) fiber.Map {
	return fiber.Map{
		"id":                v.ID,
		"type":              v.Type,
		"request_type":      v.RequestType,
		"actor_wallet":      v.ActorWallet,
		"target_wallet":     v.TargetWallet,
		"originator_wallet": v.OriginatorWallet,
		"state":             v.State,
		"created_at":        v.CreatedAt,
		"updated_at":        v.UpdatedAt,
	}
}

func viewResponses(views []View) []fiber.Map {
	out := make([]fiber.Map, 0, len(views))
	for _, v := range views {
		out = append(out, viewResponse(v))
	}
	return out
}

func httpError(err error) error {
	return fiber.NewError(apperr.StatusOf(err), err.Error())
}
