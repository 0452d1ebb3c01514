package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry kinds.
const (
	EntryKindFund        = "FUND"
	EntryKindTransferOut = "TRANSFER_OUT"
	EntryKindTransferIn  = "TRANSFER_IN"
)

// Ledger entry statuses.
const (
	EntryStatusCompleted = "COMPLETED"
	EntryStatusFailed    = "FAILED"
)

// Wallet is a stored-value account. Balance is an exact decimal, never a
// float. Version increases by exactly one on every committed mutation and
// backs the optimistic lock on single-wallet updates.
type Wallet struct {
	ID        string
	UserID    string
	Balance   decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerEntry is one immutable transaction record. A transfer produces a
// TRANSFER_OUT/TRANSFER_IN pair sharing a ReferenceID and amount, written
// in the same storage transaction as the balance changes they describe.
type LedgerEntry struct {
	ID          string
	WalletID    string
	Amount      decimal.Decimal
	Kind        string
	Status      string
	ReferenceID *string
	CreatedAt   time.Time
}
