package history

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes read-only history endpoints.
type Handler struct {
	repo Repository
}

// NewHandler builds a history HTTP handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

type recordResponse struct {
	ID            string    `json:"id"`
	WalletID      string    `json:"wallet_id"`
	UserID        string    `json:"user_id"`
	Amount        string    `json:"amount"`
	EventType     string    `json:"event_type"`
	TransactionID *string   `json:"transaction_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toResponses(records []Record) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordResponse{
			ID:            rec.ID,
			WalletID:      rec.WalletID,
			UserID:        rec.UserID,
			Amount:        rec.Amount.String(),
			EventType:     rec.EventType,
			TransactionID: rec.TransactionID,
			CreatedAt:     rec.CreatedAt,
		})
	}
	return out
}

// WalletHistory lists the projected history for one wallet.
func (h *Handler) WalletHistory(c *fiber.Ctx) error {
	records, err := h.repo.ByWallet(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "history lookup failed")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "data": toResponses(records)})
}

// UserActivity lists a user's activity across all wallets.
func (h *Handler) UserActivity(c *fiber.Ctx) error {
	records, err := h.repo.ByUser(c.UserContext(), c.Params("userId"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "history lookup failed")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "data": toResponses(records)})
}
