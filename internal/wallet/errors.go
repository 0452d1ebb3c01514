package wallet

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrWalletNotFound indicates the requested wallet does not exist.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInvalidAmount rejects non-positive amounts and self-transfers
	// before any state changes.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrOptimisticLock indicates another writer updated the wallet between
	// this operation's read and its conditional write. No partial write
	// occurred; the caller must redo the whole read-modify-write.
	ErrOptimisticLock = errors.New("concurrent update detected, retry the operation")
)

// InsufficientBalanceError reports a transfer debit that would overdraw the
// source wallet. Available reflects the balance read under the row lock, so
// it is never stale.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s", e.Required, e.Available)
}

// IsInsufficientBalance reports whether err is an insufficient-balance failure.
func IsInsufficientBalance(err error) bool {
	var ib *InsufficientBalanceError
	return errors.As(err, &ib)
}
