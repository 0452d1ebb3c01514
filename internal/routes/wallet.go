package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kasai-pay/kasai_pay/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallets", h.Create)
	r.Get("/wallets/:walletId", h.Get)
	r.Get("/users/:userId/wallets", h.ListByUser)
	r.Post("/wallets/:walletId/fund", h.Fund)
	r.Post("/wallets/:walletId/transfer", h.Transfer)
}
