package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kasai-pay/kasai_pay/internal/history"
)

// RegisterHistoryRoutes wires the projector's read-only endpoints.
func RegisterHistoryRoutes(r fiber.Router, h *history.Handler) {
	r.Get("/wallets/:walletId/history", h.WalletHistory)
	r.Get("/users/:userId/activity", h.UserActivity)
}
