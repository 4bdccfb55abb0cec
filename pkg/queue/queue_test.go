package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airchainpay/relay/pkg/types"
)

func testTx(id string, chainID uint64, priority types.Priority, receivedAt time.Time) *types.Transaction {
	return &types.Transaction{
		ID:         id,
		Raw:        []byte("raw-" + id),
		ChainID:    chainID,
		Priority:   priority,
		ReceivedAt: receivedAt,
	}
}

func TestEnqueueSetsQueuedStatus(t *testing.T) {
	q := New(10)
	tx := testTx("a", 1114, types.PriorityNormal, time.Now())

	require.NoError(t, q.Enqueue(tx))

	view, ok := q.Status("a")
	require.True(t, ok)
	assert.Equal(t, types.TxStatusQueued, view.Status)
}

func TestClaimOrdersByPriorityThenFIFO(t *testing.T) {
	q := New(10)
	base := time.Now()

	// Different chains so the per-chain FIFO does not interfere
	require.NoError(t, q.Enqueue(testTx("low", 1, types.PriorityLow, base)))
	require.NoError(t, q.Enqueue(testTx("critical", 2, types.PriorityCritical, base.Add(time.Millisecond))))
	require.NoError(t, q.Enqueue(testTx("normal-1", 3, types.PriorityNormal, base.Add(2*time.Millisecond))))
	require.NoError(t, q.Enqueue(testTx("normal-2", 4, types.PriorityNormal, base.Add(3*time.Millisecond))))

	ctx := context.Background()
	var order []string
	for i := 0; i < 4; i++ {
		tx, err := q.Claim(ctx)
		require.NoError(t, err)
		order = append(order, tx.ID)
		require.NoError(t, q.Complete(tx.ID, Outcome{Status: types.TxStatusConfirmed}))
	}

	assert.Equal(t, []string{"critical", "normal-1", "normal-2", "low"}, order)
}

func TestPerChainOrdering(t *testing.T) {
	q := New(10)
	base := time.Now()

	require.NoError(t, q.Enqueue(testTx("t1", 1114, types.PriorityNormal, base)))
	require.NoError(t, q.Enqueue(testTx("t2", 1114, types.PriorityNormal, base.Add(time.Millisecond))))

	ctx := context.Background()
	first, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", first.ID)

	// t2 must not be claimable while t1 is still Processing
	claimCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = q.Claim(claimCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, q.Complete("t1", Outcome{Status: types.TxStatusConfirmed}))

	second, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t2", second.ID)
}

func TestHigherPriorityOnBlockedChainDoesNotStarveOthers(t *testing.T) {
	q := New(10)
	base := time.Now()

	require.NoError(t, q.Enqueue(testTx("a1", 1114, types.PriorityCritical, base)))
	require.NoError(t, q.Enqueue(testTx("a2", 1114, types.PriorityCritical, base.Add(time.Millisecond))))
	require.NoError(t, q.Enqueue(testTx("b1", 84532, types.PriorityLow, base.Add(2*time.Millisecond))))

	ctx := context.Background()
	first, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", first.ID)

	// a2 heads the heap but is blocked behind a1; b1 must be claimable
	second, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b1", second.ID)
}

func TestDuplicateRejectedWithExistingID(t *testing.T) {
	q := New(10)
	tx := testTx("orig", 1114, types.PriorityNormal, time.Now())
	require.NoError(t, q.Enqueue(tx))

	dup := testTx("dup", 1114, types.PriorityNormal, time.Now())
	dup.Raw = tx.Raw

	err := q.Enqueue(dup)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindDuplicate))

	var re *types.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "orig", re.Details["existing_id"])

	stats := q.Stats()
	assert.Equal(t, 1, stats.Queued)
}

func TestDuplicateStillRejectedAfterTerminal(t *testing.T) {
	q := New(10)
	tx := testTx("orig", 1114, types.PriorityNormal, time.Now())
	require.NoError(t, q.Enqueue(tx))

	claimed, err := q.Claim(context.Background())
	require.NoError(t, err)
	require.NoError(t, q.Complete(claimed.ID, Outcome{Status: types.TxStatusConfirmed}))

	dup := testTx("dup", 1114, types.PriorityNormal, time.Now())
	dup.Raw = tx.Raw
	assert.True(t, types.IsKind(q.Enqueue(dup), types.KindDuplicate))
}

func TestCapacityBoundary(t *testing.T) {
	q := New(3)
	base := time.Now()

	for i := 0; i < 3; i++ {
		tx := testTx(fmt.Sprintf("tx-%d", i), uint64(i+1), types.PriorityNormal, base)
		require.NoError(t, q.Enqueue(tx), "enqueue at capacity %d must succeed", i+1)
	}

	overflow := testTx("overflow", 9, types.PriorityNormal, base)
	err := q.Enqueue(overflow)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindQueueFull))
}

func TestTerminalCompletionFreesCapacity(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Enqueue(testTx("first", 1, types.PriorityNormal, time.Now())))

	claimed, err := q.Claim(context.Background())
	require.NoError(t, err)
	require.NoError(t, q.Complete(claimed.ID, Outcome{Status: types.TxStatusFailedTerminal, LastError: "boom"}))

	assert.NoError(t, q.Enqueue(testTx("second", 2, types.PriorityNormal, time.Now())))
}

func TestRequeueWithDelay(t *testing.T) {
	q := New(10)
	require.NoError(t, q.Enqueue(testTx("a", 1114, types.PriorityNormal, time.Now())))

	claimed, err := q.Claim(context.Background())
	require.NoError(t, err)
	require.NoError(t, q.Requeue(claimed.ID, 30*time.Millisecond))

	view, ok := q.Status("a")
	require.True(t, ok)
	assert.Equal(t, types.TxStatusRequeued, view.Status)

	again, err := q.Claim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", again.ID)
}

func TestCompleteIsAbsorbing(t *testing.T) {
	q := New(10)
	require.NoError(t, q.Enqueue(testTx("a", 1114, types.PriorityNormal, time.Now())))

	claimed, err := q.Claim(context.Background())
	require.NoError(t, err)
	require.NoError(t, q.Complete(claimed.ID, Outcome{Status: types.TxStatusConfirmed}))

	// A second completion must not flip the terminal status
	require.NoError(t, q.Complete(claimed.ID, Outcome{Status: types.TxStatusFailedTerminal}))
	view, _ := q.Status("a")
	assert.Equal(t, types.TxStatusConfirmed, view.Status)

	assert.Error(t, q.Requeue("a", 0))
}

func TestClaimWakesOnEnqueue(t *testing.T) {
	q := New(10)

	claimed := make(chan types.Transaction, 1)
	go func() {
		tx, err := q.Claim(context.Background())
		if err == nil {
			claimed <- tx
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(testTx("late", 1114, types.PriorityNormal, time.Now())))

	select {
	case tx := <-claimed:
		assert.Equal(t, "late", tx.ID)
	case <-time.After(time.Second):
		t.Fatal("claim did not wake on enqueue")
	}
}

func TestCloseUnblocksClaimers(t *testing.T) {
	q := New(10)

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Claim(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("claim did not unblock on close")
	}
}
