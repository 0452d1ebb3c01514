package event

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PublishError reports a failed or timed-out event publication. It is kept
// distinct from storage errors because it fires strictly after the
// triggering mutation has committed: the wallet state is durable, the
// announcement is not. Callers decide whether to surface or tolerate it.
type PublishError struct {
	EventType string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.EventType, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsPublishError reports whether err originated in event publication.
func IsPublishError(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe)
}

// Publisher emits domain events to the stream. Publish returns only after
// the stream has acknowledged the entry.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// StreamPublisher writes events to a set of Redis Streams, one per
// partition. The partition is chosen from the event's partition key, so a
// single wallet's events always land on one stream and stay ordered.
type StreamPublisher struct {
	client     *redis.Client
	stream     string
	partitions int
	timeout    time.Duration
	logger     *slog.Logger
}

// NewStreamPublisher builds a publisher over the named stream set.
func NewStreamPublisher(client *redis.Client, stream string, partitions int, timeout time.Duration, logger *slog.Logger) *StreamPublisher {
	if partitions <= 0 {
		partitions = 1
	}
	return &StreamPublisher{
		client:     client,
		stream:     stream,
		partitions: partitions,
		timeout:    timeout,
		logger:     logger,
	}
}

// PartitionStream returns the stream name for a partition index.
func PartitionStream(stream string, partition int) string {
	return fmt.Sprintf("%s.%d", stream, partition)
}

// Partition maps a partition key onto a stream index.
func Partition(key string, partitions int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(partitions))
}

// Publish serializes the event and appends it to its partition stream. The
// XADD reply is the durability acknowledgment; a deadline overrun or broker
// error comes back as a *PublishError and the entry is sent at most once
// per call, so publisher retries never duplicate a transmission on their own.
func (p *StreamPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := Marshal(e)
	if err != nil {
		return &PublishError{EventType: e.Type(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	key := e.PartitionKey()
	partition := Partition(key, p.partitions)
	eventID := uuid.NewString()

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: PartitionStream(p.stream, partition),
		Values: map[string]interface{}{
			"event_id": eventID,
			"key":      key,
			"payload":  payload,
		},
	}).Result()
	if err != nil {
		p.logger.Error("event publish failed",
			slog.String("event_type", e.Type()),
			slog.String("wallet_id", key),
			slog.Any("error", err))
		return &PublishError{EventType: e.Type(), Err: err}
	}

	p.logger.Info("event published",
		slog.String("event_type", e.Type()),
		slog.String("wallet_id", key),
		slog.Int("partition", partition),
		slog.String("entry_id", id))
	return nil
}
