package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository owns the projected history store. Insert must be a single
// atomic insert-if-absent: under concurrent redelivery a separate existence
// probe followed by an insert leaves a race window, so deduplication is
// enforced by the store's uniqueness constraints, never by a prior read.
type Repository interface {
	// Insert stores the record unless one with the same idempotency
	// identity exists. It reports whether a row was written.
	Insert(ctx context.Context, rec Record) (bool, error)
	ByWallet(ctx context.Context, walletID string) ([]Record, error)
	ByUser(ctx context.Context, userID string) ([]Record, error)
}

// PostgresRepository stores history records in PostgreSQL. The table
// carries a unique index on (transaction_id, event_type) for keyed records
// and a partial unique index on (wallet_id, event_type) for key-less
// creation records; ON CONFLICT DO NOTHING makes redelivery harmless.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, wallet_id, user_id, amount::text, event_type, transaction_id, event_data, created_at`

// Insert writes the record if absent.
func (r *PostgresRepository) Insert(ctx context.Context, rec Record) (bool, error) {
	tag, err := r.db.Exec(ctx, `INSERT INTO history_records
        (id, wallet_id, user_id, amount, event_type, transaction_id, event_data, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT DO NOTHING`,
		rec.ID, rec.WalletID, rec.UserID, rec.Amount.String(), rec.EventType,
		rec.TransactionID, rec.EventData, rec.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert history record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ByWallet lists a wallet's history, newest first.
func (r *PostgresRepository) ByWallet(ctx context.Context, walletID string) ([]Record, error) {
	return r.query(ctx, `SELECT `+recordColumns+` FROM history_records
        WHERE wallet_id = $1 ORDER BY created_at DESC`, walletID)
}

// ByUser lists a user's activity across all their wallets, newest first.
func (r *PostgresRepository) ByUser(ctx context.Context, userID string) ([]Record, error) {
	return r.query(ctx, `SELECT `+recordColumns+` FROM history_records
        WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *PostgresRepository) query(ctx context.Context, sql string, arg any) ([]Record, error) {
	rows, err := r.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var amount string
		var createdAt time.Time
		if err := rows.Scan(&rec.ID, &rec.WalletID, &rec.UserID, &amount,
			&rec.EventType, &rec.TransactionID, &rec.EventData, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		rec.Amount = parsed
		rec.CreatedAt = createdAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
