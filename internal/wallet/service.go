package wallet

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kasai-pay/kasai_pay/internal/event"
)

// Service exposes wallet operations and announces each committed mutation
// on the event stream. Publication is synchronous: an operation does not
// report success until its event is acknowledged. When the publish step
// fails the mutation is already durable; the returned error is an
// *event.PublishError and the result values are still populated so callers
// can choose to tolerate the missing announcement.
type Service struct {
	repo      Repository
	publisher event.Publisher
	logger    *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(repo Repository, publisher event.Publisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, logger: logger}
}

// TransferInput captures the data needed to move funds between wallets.
type TransferInput struct {
	FromWalletID string
	ToWalletID   string
	Amount       decimal.Decimal
}

// TransferResult describes the two linked ledger entries of a completed transfer.
type TransferResult struct {
	Out LedgerEntry
	In  LedgerEntry
}

// Create provisions a wallet with zero balance.
func (s *Service) Create(ctx context.Context, userID string) (Wallet, error) {
	w, err := s.repo.CreateWallet(ctx, userID)
	if err != nil {
		return Wallet{}, err
	}

	err = s.publisher.Publish(ctx, event.WalletCreated{
		WalletID:  w.ID,
		UserID:    w.UserID,
		Timestamp: time.Now().UTC(),
	})
	return w, err
}

// Fund credits a wallet and announces the new balance.
func (s *Service) Fund(ctx context.Context, walletID string, amount decimal.Decimal) (Wallet, LedgerEntry, error) {
	w, entry, err := s.repo.Fund(ctx, walletID, amount)
	if err != nil {
		return Wallet{}, LedgerEntry{}, err
	}

	err = s.publisher.Publish(ctx, event.WalletFunded{
		WalletID:      w.ID,
		UserID:        w.UserID,
		Amount:        amount,
		NewBalance:    w.Balance,
		TransactionID: entry.ID,
		Timestamp:     time.Now().UTC(),
	})
	return w, entry, err
}

// Transfer moves funds between two wallets and announces the completed pair.
// The owner ids for the event are read before mutating anything: once the
// transfer commits, the publish step is the only thing left that can fail.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	from, err := s.repo.FindByID(ctx, input.FromWalletID)
	if err != nil {
		return TransferResult{}, err
	}
	to, err := s.repo.FindByID(ctx, input.ToWalletID)
	if err != nil {
		return TransferResult{}, err
	}

	out, in, err := s.repo.Transfer(ctx, input.FromWalletID, input.ToWalletID, input.Amount)
	if err != nil {
		return TransferResult{}, err
	}
	result := TransferResult{Out: out, In: in}

	var referenceID string
	if out.ReferenceID != nil {
		referenceID = *out.ReferenceID
	}

	err = s.publisher.Publish(ctx, event.TransferCompleted{
		FromWalletID: from.ID,
		FromUserID:   from.UserID,
		ToWalletID:   to.ID,
		ToUserID:     to.UserID,
		Amount:       input.Amount,
		ReferenceID:  referenceID,
		Timestamp:    time.Now().UTC(),
	})
	return result, err
}

// Get retrieves a wallet by id.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.FindByID(ctx, id)
}

// ListByUser retrieves all wallets owned by a user.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Wallet, error) {
	return s.repo.FindByUser(ctx, userID)
}
