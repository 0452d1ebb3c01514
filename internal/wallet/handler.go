package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/kasai-pay/kasai_pay/internal/event"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	UserID string `json:"user_id"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type transferRequest struct {
	ToWalletID string `json:"to_wallet_id"`
	Amount     string `json:"amount"`
}

type walletResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Balance   string    `json:"balance"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

type entryResponse struct {
	TransactionID string    `json:"transaction_id"`
	WalletID      string    `json:"wallet_id"`
	Amount        string    `json:"amount"`
	Kind          string    `json:"type"`
	Status        string    `json:"status"`
	ReferenceID   *string   `json:"reference_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toWalletResponse(w Wallet) walletResponse {
	return walletResponse{
		ID:        w.ID,
		UserID:    w.UserID,
		Balance:   w.Balance.String(),
		Version:   w.Version,
		CreatedAt: w.CreatedAt,
	}
}

func toEntryResponse(e LedgerEntry) entryResponse {
	return entryResponse{
		TransactionID: e.ID,
		WalletID:      e.WalletID,
		Amount:        e.Amount.String(),
		Kind:          e.Kind,
		Status:        e.Status,
		ReferenceID:   e.ReferenceID,
		CreatedAt:     e.CreatedAt,
	}
}

func envelope(data any) fiber.Map {
	return fiber.Map{"success": true, "data": data}
}

// Create provisions a wallet for a user.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" {
		return fiber.NewError(http.StatusBadRequest, "user_id is required")
	}

	w, err := h.service.Create(c.UserContext(), req.UserID)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(envelope(toWalletResponse(w)))
}

// Get returns a wallet by id.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(envelope(toWalletResponse(w)))
}

// ListByUser returns all wallets owned by a user.
func (h *Handler) ListByUser(c *fiber.Ctx) error {
	wallets, err := h.service.ListByUser(c.UserContext(), c.Params("userId"))
	if err != nil {
		return mapError(err)
	}
	out := make([]walletResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, toWalletResponse(w))
	}
	return c.Status(http.StatusOK).JSON(envelope(out))
}

// Fund credits a wallet.
func (h *Handler) Fund(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a decimal string")
	}

	w, entry, err := h.service.Fund(c.UserContext(), c.Params("walletId"), amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(envelope(fiber.Map{
		"wallet":      toWalletResponse(w),
		"transaction": toEntryResponse(entry),
	}))
}

// Transfer moves funds from the wallet in the path to the wallet in the body.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a decimal string")
	}

	result, err := h.service.Transfer(c.UserContext(), TransferInput{
		FromWalletID: c.Params("walletId"),
		ToWalletID:   req.ToWalletID,
		Amount:       amount,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(envelope(fiber.Map{
		"outgoing": toEntryResponse(result.Out),
		"incoming": toEntryResponse(result.In),
	}))
}

// mapError translates domain failures into HTTP statuses. Publish failures
// map to 500 with their own message: the mutation committed but downstream
// consumers may never hear about it.
func mapError(err error) error {
	switch {
	case errors.Is(err, ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case IsInsufficientBalance(err):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrOptimisticLock):
		return fiber.NewError(http.StatusConflict, err.Error())
	case event.IsPublishError(err):
		return fiber.NewError(http.StatusInternalServerError, "event publishing failed")
	default:
		return fiber.NewError(http.StatusInternalServerError, "storage operation failed")
	}
}
