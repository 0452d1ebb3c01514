package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kasai-pay/kasai_pay/internal/logging"
)

type collectingHandler struct {
	mu       sync.Mutex
	payloads []string
	failOnce map[string]bool
}

func (h *collectingHandler) handle(_ context.Context, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := string(payload)
	if h.failOnce[key] {
		h.failOnce[key] = false
		return errors.New("transient store failure")
	}
	h.payloads = append(h.payloads, key)
	return nil
}

func (h *collectingHandler) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.payloads))
	copy(out, h.payloads)
	return out
}

func allPartitions(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not reached before deadline")
}

func TestConsumerDeliversPublishedEvents(t *testing.T) {
	client, cleanup := newStreamFixture(t)
	defer cleanup()

	const partitions = 4
	pub := NewStreamPublisher(client, "wallet-events", partitions, time.Second, logging.Discard())
	ctx := context.Background()

	wallets := []string{"wallet-a", "wallet-b", "wallet-c"}
	for _, w := range wallets {
		if err := pub.Publish(ctx, WalletCreated{WalletID: w, UserID: "u", Timestamp: time.Now().UTC()}); err != nil {
			t.Fatalf("publish %s: %v", w, err)
		}
	}

	handler := &collectingHandler{}
	consumer := NewConsumer(client, "wallet-events", "history-service", "test-consumer",
		allPartitions(partitions), 20*time.Millisecond, handler.handle, logging.Discard())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	waitFor(t, func() bool { return len(handler.seen()) == len(wallets) })
	cancel()
	<-done

	for _, payload := range handler.seen() {
		if _, err := Unmarshal([]byte(payload)); err != nil {
			t.Fatalf("delivered payload does not decode: %v", err)
		}
	}
	if !consumer.Healthy() {
		t.Fatalf("consumer should report healthy after successful polls")
	}
}

func TestConsumerRedeliversUnackedMessage(t *testing.T) {
	client, cleanup := newStreamFixture(t)
	defer cleanup()

	const partitions = 2
	pub := NewStreamPublisher(client, "wallet-events", partitions, time.Second, logging.Discard())
	ctx := context.Background()

	e := WalletCreated{WalletID: "wallet-retry", UserID: "u", Timestamp: time.Now().UTC()}
	payload, err := Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := pub.Publish(ctx, e); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Handler fails the first delivery; the entry stays pending and must
	// come back on a later poll cycle.
	handler := &collectingHandler{failOnce: map[string]bool{string(payload): true}}
	consumer := NewConsumer(client, "wallet-events", "history-service", "test-consumer",
		allPartitions(partitions), 20*time.Millisecond, handler.handle, logging.Discard())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	waitFor(t, func() bool { return len(handler.seen()) == 1 })
	cancel()
	<-done

	if handler.seen()[0] != string(payload) {
		t.Fatalf("redelivered payload differs from the original")
	}
}

func TestConsumerPreservesOrderAcrossRetry(t *testing.T) {
	client, cleanup := newStreamFixture(t)
	defer cleanup()

	pub := NewStreamPublisher(client, "wallet-events", 1, time.Second, logging.Discard())
	ctx := context.Background()

	// Three events on one partition; the first delivery of the first one
	// fails. The two behind it must not be handled out of turn.
	events := []WalletFunded{
		{WalletID: "wallet-o", UserID: "u", TransactionID: "tx-1", Timestamp: time.Now().UTC()},
		{WalletID: "wallet-o", UserID: "u", TransactionID: "tx-2", Timestamp: time.Now().UTC()},
		{WalletID: "wallet-o", UserID: "u", TransactionID: "tx-3", Timestamp: time.Now().UTC()},
	}
	payloads := make([]string, len(events))
	for i, e := range events {
		raw, err := Marshal(e)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		payloads[i] = string(raw)
		if err := pub.Publish(ctx, e); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	handler := &collectingHandler{failOnce: map[string]bool{payloads[0]: true}}
	consumer := NewConsumer(client, "wallet-events", "history-service", "test-consumer",
		[]int{0}, 20*time.Millisecond, handler.handle, logging.Discard())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	waitFor(t, func() bool { return len(handler.seen()) == len(payloads) })
	cancel()
	<-done

	for i, got := range handler.seen() {
		if got != payloads[i] {
			t.Fatalf("position %d handled out of order", i)
		}
	}
}

func TestConsumerSkipsEntryWithoutPayload(t *testing.T) {
	client, cleanup := newStreamFixture(t)
	defer cleanup()

	ctx := context.Background()
	stream := PartitionStream("wallet-events", 0)
	if err := client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: map[string]interface{}{"junk": "1"}}).Err(); err != nil {
		t.Fatalf("seed junk entry: %v", err)
	}

	pub := NewStreamPublisher(client, "wallet-events", 1, time.Second, logging.Discard())
	if err := pub.Publish(ctx, WalletCreated{WalletID: "w", UserID: "u", Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	handler := &collectingHandler{}
	consumer := NewConsumer(client, "wallet-events", "history-service", "test-consumer",
		[]int{0}, 20*time.Millisecond, handler.handle, logging.Discard())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	// The junk entry must not block the real one behind it.
	waitFor(t, func() bool { return len(handler.seen()) == 1 })
	cancel()
	<-done
}

func TestPollBackoffCapsOut(t *testing.T) {
	if got := pollBackoff(1); got != baseBackoff {
		t.Fatalf("first backoff should be the base, got %v", got)
	}
	if got := pollBackoff(2); got != 2*baseBackoff {
		t.Fatalf("second backoff should double, got %v", got)
	}
	if got := pollBackoff(50); got != maxBackoff {
		t.Fatalf("backoff must cap at %v, got %v", maxBackoff, got)
	}
}
