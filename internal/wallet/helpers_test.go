package wallet

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that overwrites a wallet's balance when using
// the in-memory repository. The version counter is left untouched.
func SeedBalance(r Repository, walletID string, amount decimal.Decimal) {
	if mem, ok := r.(*memoryRepository); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if w, exists := mem.wallets[walletID]; exists {
			w.Balance = amount
			mem.wallets[walletID] = w
		}
	}
}

// Entries is a test helper returning all ledger entries recorded by the
// in-memory repository, in insertion order.
func Entries(r Repository) []LedgerEntry {
	if mem, ok := r.(*memoryRepository); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		out := make([]LedgerEntry, len(mem.entries))
		copy(out, mem.entries)
		return out
	}
	return nil
}
