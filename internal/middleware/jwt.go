package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/canopy-ledger/canopy_ledger/internal/auth"
	"github.com/canopy-ledger/canopy_ledger/internal/config"
	"github.com/canopy-ledger/canopy_ledger/internal/wallet"
)

// JWTAuth returns a middleware that validates JWT access tokens and resolves
// the acting wallet.
func JWTAuth(cfg config.Config, wallets wallet.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := auth.ParseAndVerifyHS256(tokenStr, []byte(cfg.JWTSecret))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if exp, ok := claims["exp"].(float64); !ok || time.Now().Unix() >= int64(exp) {
			return fiber.NewError(http.StatusUnauthorized, "token expired")
		}
		sub, _ := claims["sub"].(string)

		w, err := wallets.Get(c.UserContext(), sub)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "wallet no longer exists")
		}

		c.Locals("wallet_id", w.ID)
		c.Locals("wallet_name", w.Name)
		return c.Next()
	}
}
