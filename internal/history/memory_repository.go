package history

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu      sync.Mutex
	records []Record
	seen    map[string]struct{}
}

// NewMemoryRepository constructs an in-memory repository for tests. Insert
// checks and records the idempotency identity under one lock, mirroring the
// uniqueness constraints of the Postgres table.
func NewMemoryRepository() Repository {
	return &memoryRepository{seen: make(map[string]struct{})}
}

func dedupeKey(rec Record) string {
	if rec.TransactionID != nil {
		return "tx:" + *rec.TransactionID + ":" + rec.EventType
	}
	return "wallet:" + rec.WalletID + ":" + rec.EventType
}

func (r *memoryRepository) Insert(_ context.Context, rec Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dedupeKey(rec)
	if _, exists := r.seen[key]; exists {
		return false, nil
	}
	r.seen[key] = struct{}{}
	r.records = append(r.records, rec)
	return true, nil
}

func (r *memoryRepository) ByWallet(_ context.Context, walletID string) ([]Record, error) {
	return r.filter(func(rec Record) bool { return rec.WalletID == walletID }), nil
}

func (r *memoryRepository) ByUser(_ context.Context, userID string) ([]Record, error) {
	return r.filter(func(rec Record) bool { return rec.UserID == userID }), nil
}

func (r *memoryRepository) filter(keep func(Record) bool) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Record
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
