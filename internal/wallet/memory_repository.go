package wallet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memoryRepository struct {
	mu      sync.Mutex
	wallets map[string]Wallet
	entries []LedgerEntry
}

// NewMemoryRepository constructs an in-memory repository for tests. It keeps
// the Postgres implementation's concurrency semantics: Fund reads a
// snapshot, releases the lock, then compares the version at write time, so
// concurrent funders race exactly as they would against the database.
func NewMemoryRepository() Repository {
	return &memoryRepository{wallets: make(map[string]Wallet)}
}

func (r *memoryRepository) CreateWallet(_ context.Context, userID string) (Wallet, error) {
	now := time.Now().UTC()
	w := Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Balance:   decimal.Zero,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[w.ID] = w
	return w, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(id)
}

func (r *memoryRepository) FindByUser(_ context.Context, userID string) ([]Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var wallets []Wallet
	for _, w := range r.wallets {
		if w.UserID == userID {
			wallets = append(wallets, w)
		}
	}
	sort.Slice(wallets, func(i, j int) bool {
		return wallets[i].CreatedAt.After(wallets[j].CreatedAt)
	})
	return wallets, nil
}

func (r *memoryRepository) Fund(ctx context.Context, walletID string, amount decimal.Decimal) (Wallet, LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Wallet{}, LedgerEntry{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}

	snapshot, err := r.FindByID(ctx, walletID)
	if err != nil {
		return Wallet{}, LedgerEntry{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.findLocked(walletID)
	if err != nil {
		return Wallet{}, LedgerEntry{}, err
	}
	if current.Version != snapshot.Version {
		return Wallet{}, LedgerEntry{}, ErrOptimisticLock
	}

	current.Balance = current.Balance.Add(amount)
	current.Version++
	current.UpdatedAt = time.Now().UTC()
	r.wallets[walletID] = current

	entry := r.appendEntryLocked(walletID, amount, EntryKindFund, nil)
	return current, entry, nil
}

func (r *memoryRepository) Transfer(_ context.Context, fromID, toID string, amount decimal.Decimal) (LedgerEntry, LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return LedgerEntry{}, LedgerEntry{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if fromID == toID {
		return LedgerEntry{}, LedgerEntry{}, fmt.Errorf("%w: cannot transfer to the same wallet", ErrInvalidAmount)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	from, err := r.findLocked(fromID)
	if err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}
	to, err := r.findLocked(toID)
	if err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}

	if from.Balance.LessThan(amount) {
		return LedgerEntry{}, LedgerEntry{}, &InsufficientBalanceError{Required: amount, Available: from.Balance}
	}

	now := time.Now().UTC()
	from.Balance = from.Balance.Sub(amount)
	from.Version++
	from.UpdatedAt = now
	to.Balance = to.Balance.Add(amount)
	to.Version++
	to.UpdatedAt = now
	r.wallets[fromID] = from
	r.wallets[toID] = to

	referenceID := uuid.NewString()
	out := r.appendEntryLocked(fromID, amount, EntryKindTransferOut, &referenceID)
	in := r.appendEntryLocked(toID, amount, EntryKindTransferIn, &referenceID)
	return out, in, nil
}

func (r *memoryRepository) findLocked(id string) (Wallet, error) {
	w, ok := r.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (r *memoryRepository) appendEntryLocked(walletID string, amount decimal.Decimal, kind string, referenceID *string) LedgerEntry {
	entry := LedgerEntry{
		ID:          uuid.NewString(),
		WalletID:    walletID,
		Amount:      amount,
		Kind:        kind,
		Status:      EntryStatusCompleted,
		ReferenceID: referenceID,
		CreatedAt:   time.Now().UTC(),
	}
	r.entries = append(r.entries, entry)
	return entry
}
