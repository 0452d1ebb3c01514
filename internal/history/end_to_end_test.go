package history

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasai-pay/kasai_pay/internal/event"
	"github.com/kasai-pay/kasai_pay/internal/logging"
	"github.com/kasai-pay/kasai_pay/internal/wallet"
)

// The wallet service and the projector never call each other; everything a
// user sees in their history flowed through the stream. This test runs the
// whole pipeline against miniredis.
func TestMutationsFlowIntoHistory(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	const partitions = 4
	logger := logging.Discard()

	publisher := event.NewStreamPublisher(client, "wallet-events", partitions, time.Second, logger)
	walletSvc := wallet.NewService(wallet.NewMemoryRepository(), publisher, logger)

	historyRepo := NewMemoryRepository()
	projector := NewProjector(historyRepo, logger)

	assignment := make([]int, partitions)
	for i := range assignment {
		assignment[i] = i
	}
	consumer := event.NewConsumer(client, "wallet-events", "history-service", "e2e-consumer",
		assignment, 20*time.Millisecond, projector.HandleMessage, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	ctx := context.Background()
	from, err := walletSvc.Create(ctx, "alice")
	require.NoError(t, err)
	to, err := walletSvc.Create(ctx, "bob")
	require.NoError(t, err)

	_, _, err = walletSvc.Fund(ctx, from.ID, decimal.RequireFromString("100.50"))
	require.NoError(t, err)

	_, err = walletSvc.Transfer(ctx, wallet.TransferInput{
		FromWalletID: from.ID,
		ToWalletID:   to.ID,
		Amount:       decimal.RequireFromString("30"),
	})
	require.NoError(t, err)

	// created + funded + transfer-out for the sender.
	waitForRecords(t, historyRepo, from.ID, 3)
	// created + transfer-in for the receiver.
	waitForRecords(t, historyRepo, to.ID, 2)

	cancel()
	<-done

	fromHistory, err := historyRepo.ByWallet(ctx, from.ID)
	require.NoError(t, err)
	types := make(map[string]int)
	for _, rec := range fromHistory {
		types[rec.EventType]++
	}
	assert.Equal(t, 1, types[event.TypeWalletCreated])
	assert.Equal(t, 1, types[event.TypeWalletFunded])
	assert.Equal(t, 1, types[RecordTypeTransferOut])

	toHistory, err := historyRepo.ByWallet(ctx, to.ID)
	require.NoError(t, err)
	var sawIncoming bool
	for _, rec := range toHistory {
		if rec.EventType == RecordTypeTransferIn {
			sawIncoming = true
			assert.True(t, rec.Amount.Equal(decimal.RequireFromString("30")))
			assert.Equal(t, "bob", rec.UserID)
		}
	}
	assert.True(t, sawIncoming, "receiver must see the incoming side of the transfer")
}

func waitForRecords(t *testing.T, repo Repository, walletID string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		records, err := repo.ByWallet(context.Background(), walletID)
		require.NoError(t, err)
		if len(records) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("wallet %s never reached %d history records", walletID, want)
}
