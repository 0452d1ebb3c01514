package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kasai-pay/kasai_pay/internal/event"
)

// Projector materializes stream events into history records. A transfer
// fans out to two records, one per side; every other event projects one.
// Deduplication rides on Repository.Insert, so replaying a delivery is a
// no-op rather than a duplicate row.
type Projector struct {
	repo   Repository
	logger *slog.Logger
}

// NewProjector builds a projector over the history store.
func NewProjector(repo Repository, logger *slog.Logger) *Projector {
	return &Projector{repo: repo, logger: logger}
}

// HandleMessage processes one raw payload from the stream. A payload that
// does not decode is logged and dropped so a corrupt message can never
// block the ones behind it. A storage failure is returned unhandled: the
// message stays unacknowledged and the stream redelivers it.
func (p *Projector) HandleMessage(ctx context.Context, payload []byte) error {
	ev, err := event.Unmarshal(payload)
	if err != nil {
		p.logger.Warn("discarding malformed event",
			slog.String("payload", string(payload)),
			slog.Any("error", err))
		return nil
	}

	p.logger.Info("projecting event",
		slog.String("event_type", ev.Type()),
		slog.String("wallet_id", ev.PartitionKey()))

	switch e := ev.(type) {
	case event.WalletCreated:
		return p.insert(ctx, Record{
			ID:        uuid.NewString(),
			WalletID:  e.WalletID,
			UserID:    e.UserID,
			Amount:    decimal.Zero,
			EventType: event.TypeWalletCreated,
			EventData: payload,
			CreatedAt: e.Timestamp,
		})
	case event.WalletFunded:
		txID := e.TransactionID
		return p.insert(ctx, Record{
			ID:            uuid.NewString(),
			WalletID:      e.WalletID,
			UserID:        e.UserID,
			Amount:        e.Amount,
			EventType:     event.TypeWalletFunded,
			TransactionID: &txID,
			EventData:     payload,
			CreatedAt:     e.Timestamp,
		})
	case event.TransferCompleted:
		return p.projectTransfer(ctx, e, payload)
	default:
		return fmt.Errorf("unhandled event type %q", ev.Type())
	}
}

// projectTransfer writes the sender and receiver records, both keyed by the
// transfer's reference id.
func (p *Projector) projectTransfer(ctx context.Context, e event.TransferCompleted, payload []byte) error {
	refID := e.ReferenceID
	out := Record{
		ID:            uuid.NewString(),
		WalletID:      e.FromWalletID,
		UserID:        e.FromUserID,
		Amount:        e.Amount,
		EventType:     RecordTypeTransferOut,
		TransactionID: &refID,
		EventData:     payload,
		CreatedAt:     e.Timestamp,
	}
	in := Record{
		ID:            uuid.NewString(),
		WalletID:      e.ToWalletID,
		UserID:        e.ToUserID,
		Amount:        e.Amount,
		EventType:     RecordTypeTransferIn,
		TransactionID: &refID,
		EventData:     payload,
		CreatedAt:     e.Timestamp,
	}

	if err := p.insert(ctx, out); err != nil {
		return err
	}
	return p.insert(ctx, in)
}

func (p *Projector) insert(ctx context.Context, rec Record) error {
	inserted, err := p.repo.Insert(ctx, rec)
	if err != nil {
		return err
	}
	if !inserted {
		p.logger.Debug("event already projected",
			slog.String("event_type", rec.EventType),
			slog.String("wallet_id", rec.WalletID))
	}
	return nil
}
