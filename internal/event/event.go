package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event type discriminator values carried in the eventType field.
const (
	TypeWalletCreated     = "WALLET_CREATED"
	TypeWalletFunded      = "WALLET_FUNDED"
	TypeTransferCompleted = "TRANSFER_COMPLETED"
)

// Event is a committed wallet mutation announced to downstream consumers.
// The set of implementations is closed: WalletCreated, WalletFunded and
// TransferCompleted. Events are immutable and may be delivered more than
// once; IdempotencyKey is what deduplicates them on the consuming side.
type Event interface {
	// Type returns the eventType discriminator.
	Type() string
	// PartitionKey returns the primary wallet id. All events sharing a
	// partition key are observed in emission order.
	PartitionKey() string
	// IdempotencyKey returns the transaction or reference id used to
	// deduplicate redelivery, or "" when the event has no natural key.
	IdempotencyKey() string
}

// WalletCreated announces a newly provisioned wallet.
type WalletCreated struct {
	WalletID  string    `json:"wallet_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (e WalletCreated) Type() string           { return TypeWalletCreated }
func (e WalletCreated) PartitionKey() string   { return e.WalletID }
func (e WalletCreated) IdempotencyKey() string { return "" }

// WalletFunded announces a completed fund operation.
type WalletFunded struct {
	WalletID      string          `json:"wallet_id"`
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	TransactionID string          `json:"transaction_id"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (e WalletFunded) Type() string           { return TypeWalletFunded }
func (e WalletFunded) PartitionKey() string   { return e.WalletID }
func (e WalletFunded) IdempotencyKey() string { return e.TransactionID }

// TransferCompleted announces a completed transfer between two wallets.
// ReferenceID links the sender and receiver ledger entries.
type TransferCompleted struct {
	FromWalletID string          `json:"from_wallet_id"`
	FromUserID   string          `json:"from_user_id"`
	ToWalletID   string          `json:"to_wallet_id"`
	ToUserID     string          `json:"to_user_id"`
	Amount       decimal.Decimal `json:"amount"`
	ReferenceID  string          `json:"reference_id"`
	Timestamp    time.Time       `json:"timestamp"`
}

func (e TransferCompleted) Type() string           { return TypeTransferCompleted }
func (e TransferCompleted) PartitionKey() string   { return e.FromWalletID }
func (e TransferCompleted) IdempotencyKey() string { return e.ReferenceID }

type envelope struct {
	EventType string `json:"eventType"`
}

// Marshal encodes an event as a JSON object tagged with eventType.
// Decimal amounts serialize as strings, never floats.
func Marshal(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.Type(), err)
	}
	// Splice the discriminator into the payload object.
	tagged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &tagged); err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.Type(), err)
	}
	tag, _ := json.Marshal(e.Type())
	tagged["eventType"] = tag
	return json.Marshal(tagged)
}

// Unmarshal decodes a tagged JSON payload into the matching event variant.
func Unmarshal(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	switch env.EventType {
	case TypeWalletCreated:
		var e WalletCreated
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.EventType, err)
		}
		return e, nil
	case TypeWalletFunded:
		var e WalletFunded
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.EventType, err)
		}
		return e, nil
	case TypeTransferCompleted:
		var e TransferCompleted
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.EventType, err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown eventType %q", env.EventType)
	}
}
