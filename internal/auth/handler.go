package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/canopy-ledger/canopy_ledger/internal/wallet"
)

// Handler exposes auth endpoints for login and refresh.
type Handler struct {
	svc     *Service
	wallets *wallet.Service
}

func NewHandler(svc *Service, wallets *wallet.Service) *Handler {
	return &Handler{svc: svc, wallets: wallets}
}

type loginRequest struct {
	Wallet   string `json:"wallet"`
	Password string `json:"password"`
}

type loginResponse struct {
	WalletID     string `json:"wallet_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login validates wallet credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.wallets.Authenticate(c.UserContext(), wallet.Credentials{Name: req.Wallet, Password: req.Password})
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid wallet name or password")
	}
	pair, err := h.svc.Login(w)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		WalletID:     w.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"access_token": token, "expires_in": exp})
}
