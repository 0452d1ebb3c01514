package history

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Record types for the two sides of a projected transfer. Creation and
// funding records reuse the event type discriminators directly.
const (
	RecordTypeTransferOut = "TRANSFER_OUT"
	RecordTypeTransferIn  = "TRANSFER_IN"
)

// Record is one projected history entry, materialized from a stream event.
// TransactionID is the idempotency key: WALLET_FUNDED records carry the
// funding transaction id, TRANSFER_OUT/TRANSFER_IN the shared reference id,
// and WALLET_CREATED records none (they deduplicate on wallet id + type).
// EventData preserves the raw event for auditing.
type Record struct {
	ID            string
	WalletID      string
	UserID        string
	Amount        decimal.Decimal
	EventType     string
	TransactionID *string
	EventData     json.RawMessage
	CreatedAt     time.Time
}
