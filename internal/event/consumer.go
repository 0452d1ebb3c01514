package event

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	readBatchSize      = 16
	baseBackoff        = 500 * time.Millisecond
	maxBackoff         = 30 * time.Second
	unhealthyThreshold = 5
)

// Handler processes one raw event payload. Returning an error leaves the
// message unacknowledged so the stream redelivers it; handlers must not
// retry internally.
type Handler func(ctx context.Context, payload []byte) error

// Consumer reads an assigned set of partition streams on behalf of a
// consumer group. Partitions are assigned statically and must be disjoint
// across instances sharing a group; that is what keeps one wallet's events
// on a single instance and in order.
type Consumer struct {
	client     *redis.Client
	stream     string
	group      string
	name       string
	partitions []int
	block      time.Duration
	handler    Handler
	logger     *slog.Logger

	failures atomic.Int64
	// reclaim selects reading this consumer's pending entries instead of
	// new ones, so messages left unacked by a handler failure are retried
	// before the cursor moves on.
	reclaim bool
}

// NewConsumer builds a consumer over the given partition assignment.
func NewConsumer(client *redis.Client, stream, group, name string, partitions []int, block time.Duration, handler Handler, logger *slog.Logger) *Consumer {
	return &Consumer{
		client:     client,
		stream:     stream,
		group:      group,
		name:       name,
		partitions: partitions,
		block:      block,
		handler:    handler,
		logger:     logger,
	}
}

// Healthy reports whether the poll loop is making progress. It turns false
// once consecutive poll failures pass a threshold and recovers on the next
// successful poll.
func (c *Consumer) Healthy() bool {
	return c.failures.Load() < unhealthyThreshold
}

// Run consumes until ctx is cancelled. The stop signal is checked between
// poll cycles, never mid-message, so shutdown cannot drop a half-processed
// entry.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroups(ctx); err != nil {
		return err
	}

	c.logger.Info("consumer started",
		slog.String("group", c.group),
		slog.String("consumer", c.name),
		slog.Any("partitions", c.partitions))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", slog.String("consumer", c.name))
			return ctx.Err()
		default:
		}

		_, err := c.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n := c.failures.Add(1)
			wait := pollBackoff(n)
			c.logger.Error("poll failed",
				slog.Any("error", err),
				slog.Int64("consecutive_failures", n),
				slog.Duration("backoff", wait))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		c.failures.Store(0)
	}
}

// ensureGroups creates the consumer group on every assigned partition
// stream, creating streams that do not exist yet.
func (c *Consumer) ensureGroups(ctx context.Context) error {
	for _, p := range c.partitions {
		err := c.client.XGroupCreateMkStream(ctx, PartitionStream(c.stream, p), c.group, "0").Err()
		if err != nil && !isBusyGroup(err) {
			return err
		}
	}
	return nil
}

// poll reads one batch across the assigned partitions and dispatches each
// message. Handled messages are acked; failed ones stay pending and are
// re-read on the next cycle.
func (c *Consumer) poll(ctx context.Context) (int, error) {
	cursor := ">"
	if c.reclaim {
		cursor = "0"
	}

	streams := make([]string, 0, len(c.partitions)*2)
	for _, p := range c.partitions {
		streams = append(streams, PartitionStream(c.stream, p))
	}
	for range c.partitions {
		streams = append(streams, cursor)
	}

	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  streams,
		Count:    readBatchSize,
		Block:    c.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.reclaim = false
			return 0, nil
		}
		return 0, err
	}

	handled := 0
	pending := false
	for _, stream := range res {
		for _, msg := range stream.Messages {
			if err := c.dispatch(ctx, stream.Stream, msg); err != nil {
				// Skip the rest of this partition's batch: the entries
				// stay pending and the reclaim cycle replays them after
				// the failed one, keeping per-wallet order intact.
				pending = true
				break
			}
			handled++
		}
	}

	// Re-read pending entries next cycle while any handler failed;
	// otherwise resume consuming new entries.
	c.reclaim = pending
	if c.reclaim && handled == 0 {
		// Nothing in the batch could be handled; treat the cycle as a
		// poll failure so backoff applies instead of a hot retry loop.
		return handled, errors.New("no message in batch could be handled")
	}
	return handled, nil
}

func (c *Consumer) dispatch(ctx context.Context, stream string, msg redis.XMessage) error {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		// Nothing to process; ack so the malformed entry cannot wedge
		// the partition.
		c.logger.Warn("stream entry missing payload",
			slog.String("stream", stream),
			slog.String("entry_id", msg.ID))
		return c.client.XAck(ctx, stream, c.group, msg.ID).Err()
	}

	if err := c.handler(ctx, []byte(payload)); err != nil {
		c.logger.Error("message handling failed, leaving pending",
			slog.String("stream", stream),
			slog.String("entry_id", msg.ID),
			slog.Any("error", err))
		return err
	}

	return c.client.XAck(ctx, stream, c.group, msg.ID).Err()
}

func pollBackoff(failures int64) time.Duration {
	wait := baseBackoff
	for i := int64(1); i < failures; i++ {
		wait *= 2
		if wait >= maxBackoff {
			return maxBackoff
		}
	}
	return wait
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}
