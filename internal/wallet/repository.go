package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists wallets and their immutable ledger entries. Every
// mutation spans exactly one storage transaction; a failure inside it rolls
// back all of it.
type Repository interface {
	CreateWallet(ctx context.Context, userID string) (Wallet, error)
	FindByID(ctx context.Context, id string) (Wallet, error)
	FindByUser(ctx context.Context, userID string) ([]Wallet, error)
	Fund(ctx context.Context, walletID string, amount decimal.Decimal) (Wallet, LedgerEntry, error)
	Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal) (LedgerEntry, LedgerEntry, error)
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `id, user_id, balance::text, version, created_at, updated_at`

// CreateWallet provisions a wallet with zero balance and version zero.
func (r *PostgresRepository) CreateWallet(ctx context.Context, userID string) (Wallet, error) {
	now := time.Now().UTC()
	w := Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Balance:   decimal.Zero,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.Exec(ctx, `INSERT INTO wallets (id, user_id, balance, version, created_at, updated_at)
        VALUES ($1, $2, 0, 0, $3, $3)`, w.ID, w.UserID, now)
	if err != nil {
		return Wallet{}, fmt.Errorf("insert wallet: %w", err)
	}
	return w, nil
}

// FindByID fetches a wallet without taking any lock.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
	return scanWallet(row)
}

// FindByUser lists a user's wallets, newest first.
func (r *PostgresRepository) FindByUser(ctx context.Context, userID string) ([]Wallet, error) {
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// Fund credits a wallet under optimistic concurrency control. The balance is
// recomputed from the read snapshot and written conditionally on the version
// that was read; zero matched rows means another writer won the race and the
// caller must redo the whole read-modify-write, not just the write.
func (r *PostgresRepository) Fund(ctx context.Context, walletID string, amount decimal.Decimal) (Wallet, LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Wallet{}, LedgerEntry{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Wallet{}, LedgerEntry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := findWalletTx(ctx, tx, walletID, false)
	if err != nil {
		return Wallet{}, LedgerEntry{}, err
	}

	now := time.Now().UTC()
	updated := current
	updated.Balance = current.Balance.Add(amount)
	updated.Version = current.Version + 1
	updated.UpdatedAt = now

	tag, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1, version = $2, updated_at = $3
        WHERE id = $4 AND version = $5`,
		updated.Balance.String(), updated.Version, now, walletID, current.Version)
	if err != nil {
		return Wallet{}, LedgerEntry{}, err
	}
	if tag.RowsAffected() == 0 {
		return Wallet{}, LedgerEntry{}, ErrOptimisticLock
	}

	entry, err := insertEntryTx(ctx, tx, walletID, amount, EntryKindFund, nil)
	if err != nil {
		return Wallet{}, LedgerEntry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, LedgerEntry{}, err
	}
	return updated, entry, nil
}

// Transfer moves funds between two wallets as one atomic unit. Both rows are
// locked with SELECT ... FOR UPDATE in ascending id order regardless of
// which is the sender, so two opposite transfers over the same pair cannot
// deadlock. The balance check runs against the locked row, never a stale read.
func (r *PostgresRepository) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal) (LedgerEntry, LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return LedgerEntry{}, LedgerEntry{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if fromID == toID {
		return LedgerEntry{}, LedgerEntry{}, fmt.Errorf("%w: cannot transfer to the same wallet", ErrInvalidAmount)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	firstID, secondID := fromID, toID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}

	first, err := findWalletTx(ctx, tx, firstID, true)
	if err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}
	second, err := findWalletTx(ctx, tx, secondID, true)
	if err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}

	from, to := first, second
	if from.ID != fromID {
		from, to = second, first
	}

	if from.Balance.LessThan(amount) {
		return LedgerEntry{}, LedgerEntry{}, &InsufficientBalanceError{Required: amount, Available: from.Balance}
	}

	now := time.Now().UTC()
	const update = `UPDATE wallets SET balance = $1, version = version + 1, updated_at = $2 WHERE id = $3`
	if _, err := tx.Exec(ctx, update, from.Balance.Sub(amount).String(), now, from.ID); err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}
	if _, err := tx.Exec(ctx, update, to.Balance.Add(amount).String(), now, to.ID); err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}

	referenceID := uuid.NewString()
	out, err := insertEntryTx(ctx, tx, from.ID, amount, EntryKindTransferOut, &referenceID)
	if err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}
	in, err := insertEntryTx(ctx, tx, to.ID, amount, EntryKindTransferIn, &referenceID)
	if err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return LedgerEntry{}, LedgerEntry{}, err
	}
	return out, in, nil
}

func findWalletTx(ctx context.Context, tx pgx.Tx, id string, forUpdate bool) (Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanWallet(tx.QueryRow(ctx, query, id))
}

func insertEntryTx(ctx context.Context, tx pgx.Tx, walletID string, amount decimal.Decimal, kind string, referenceID *string) (LedgerEntry, error) {
	entry := LedgerEntry{
		ID:          uuid.NewString(),
		WalletID:    walletID,
		Amount:      amount,
		Kind:        kind,
		Status:      EntryStatusCompleted,
		ReferenceID: referenceID,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := tx.Exec(ctx, `INSERT INTO ledger_entries (id, wallet_id, amount, kind, status, reference_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.WalletID, entry.Amount.String(), entry.Kind, entry.Status, entry.ReferenceID, entry.CreatedAt)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (Wallet, error) {
	var w Wallet
	var balance string
	if err := row.Scan(&w.ID, &w.UserID, &balance, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	w.Balance = parsed
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
