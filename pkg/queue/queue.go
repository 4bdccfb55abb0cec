package queue

import (
	"container/heap"
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/airchainpay/relay/pkg/types"
)

// DefaultCapacity bounds the number of live transactions
const DefaultCapacity = 10_000

// Fingerprint identifies a raw transaction for dedupe
type Fingerprint [32]byte

// FingerprintOf returns the canonical dedupe fingerprint of raw bytes
func FingerprintOf(raw []byte) Fingerprint {
	return sha256.Sum256(raw)
}

// Outcome finalizes a claimed transaction
type Outcome struct {
	Status    types.TxStatus // Confirmed or FailedTerminal
	Hash      *common.Hash
	LastError string
	Attempts  int
}

// entry is the authoritative record for one known transaction id
type entry struct {
	tx *types.Transaction
}

// item is one pending heap element
type item struct {
	tx    *types.Transaction
	seq   uint64
	index int
}

// itemHeap orders by priority rank desc, then received_at asc, then
// insertion sequence asc (FIFO within a priority).
type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	ri, rj := h[i].tx.Priority.Rank(), h[j].tx.Priority.Rank()
	if ri != rj {
		return ri > rj
	}
	if !h[i].tx.ReceivedAt.Equal(h[j].tx.ReceivedAt) {
		return h[i].tx.ReceivedAt.Before(h[j].tx.ReceivedAt)
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is the relay's transaction queue: a priority heap of runnable
// work, per-chain FIFO tails enforcing submit-order completion, a status
// index for queries, and SHA-256 fingerprints for dedupe. One mutex guards
// everything; no I/O happens under the lock.
type Queue struct {
	mu sync.Mutex

	pending   itemHeap
	byID      map[string]*entry
	chainFIFO map[uint64][]string
	fpToID    map[Fingerprint]string
	idToFP    map[string]Fingerprint

	capacity int
	live     int
	seq      uint64

	waitCh chan struct{} // closed and replaced on every state change
	stopCh chan struct{}
	closed bool
}

// New creates a queue; capacity <= 0 uses DefaultCapacity
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		byID:      make(map[string]*entry),
		chainFIFO: make(map[uint64][]string),
		fpToID:    make(map[Fingerprint]string),
		idToFP:    make(map[string]Fingerprint),
		capacity:  capacity,
		waitCh:    make(chan struct{}),
		stopCh:    make(chan struct{}),
	}
}

func (q *Queue) notifyLocked() {
	close(q.waitCh)
	q.waitCh = make(chan struct{})
}

// Enqueue admits a transaction. It rejects duplicates of any known raw
// payload (at-most-once on-chain) and enqueues past capacity with
// QueueFull as the backpressure signal.
func (q *Queue) Enqueue(tx *types.Transaction) error {
	fp := FingerprintOf(tx.Raw)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return types.E(types.KindQueueFull, "queue is shut down")
	}

	if existing, ok := q.fpToID[fp]; ok {
		return types.Ef(types.KindDuplicate, "transaction already accepted as %s", existing).
			WithDetail("existing_id", existing)
	}
	if _, ok := q.byID[tx.ID]; ok {
		return types.Ef(types.KindDuplicate, "transaction id %s already known", tx.ID).
			WithDetail("existing_id", tx.ID)
	}

	if q.live >= q.capacity {
		return types.Ef(types.KindQueueFull, "queue at capacity %d", q.capacity)
	}

	tx.Status = types.TxStatusQueued
	q.live++
	q.byID[tx.ID] = &entry{tx: tx}
	q.fpToID[fp] = tx.ID
	q.idToFP[tx.ID] = fp
	q.chainFIFO[tx.ChainID] = append(q.chainFIFO[tx.ChainID], tx.ID)

	q.seq++
	heap.Push(&q.pending, &item{tx: tx, seq: q.seq})

	q.notifyLocked()
	return nil
}

// runnableLocked reports whether id heads its chain FIFO, i.e. no earlier
// same-chain transaction is still live ahead of it.
func (q *Queue) runnableLocked(tx *types.Transaction) bool {
	fifo := q.chainFIFO[tx.ChainID]
	return len(fifo) > 0 && fifo[0] == tx.ID
}

// claimLocked pops the best runnable pending item, restoring the rest
func (q *Queue) claimLocked() *types.Transaction {
	var stash []*item
	var claimed *types.Transaction

	for q.pending.Len() > 0 {
		it := heap.Pop(&q.pending).(*item)
		if q.runnableLocked(it.tx) {
			claimed = it.tx
			break
		}
		stash = append(stash, it)
	}
	for _, it := range stash {
		heap.Push(&q.pending, it)
	}
	return claimed
}

// Claim blocks until a runnable transaction is available, marks it
// Processing, and returns a snapshot of it.
func (q *Queue) Claim(ctx context.Context) (types.Transaction, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return types.Transaction{}, context.Canceled
		}
		if tx := q.claimLocked(); tx != nil {
			tx.Status = types.TxStatusProcessing
			snapshot := *tx
			q.mu.Unlock()
			return snapshot, nil
		}
		wait := q.waitCh
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return types.Transaction{}, ctx.Err()
		case <-q.stopCh:
			return types.Transaction{}, context.Canceled
		case <-wait:
		}
	}
}

// Complete moves a Processing transaction to a terminal status, releases
// its chain FIFO slot and wakes waiting claimers.
func (q *Queue) Complete(id string, outcome Outcome) error {
	if !outcome.Status.Terminal() {
		return types.Ef(types.KindInvalidInput, "outcome status %s is not terminal", outcome.Status)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[id]
	if !ok {
		return types.Ef(types.KindInvalidInput, "unknown transaction %s", id)
	}
	if e.tx.Status.Terminal() {
		return nil
	}

	e.tx.Status = outcome.Status
	q.live--
	e.tx.Hash = outcome.Hash
	e.tx.LastError = outcome.LastError
	if outcome.Attempts > 0 {
		e.tx.Attempts = outcome.Attempts
	}

	q.removeFromFIFOLocked(e.tx.ChainID, id)
	q.notifyLocked()
	return nil
}

func (q *Queue) removeFromFIFOLocked(chainID uint64, id string) {
	fifo := q.chainFIFO[chainID]
	for i, fid := range fifo {
		if fid == id {
			q.chainFIFO[chainID] = append(fifo[:i], fifo[i+1:]...)
			break
		}
	}
	if len(q.chainFIFO[chainID]) == 0 {
		delete(q.chainFIFO, chainID)
	}
}

// Requeue returns a Processing transaction to the heap after delay at the
// same priority, keeping its chain FIFO position. A zero delay requeues
// inline; cancellation rollback uses that.
func (q *Queue) Requeue(id string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[id]
	if !ok {
		return types.Ef(types.KindInvalidInput, "unknown transaction %s", id)
	}
	if e.tx.Status.Terminal() {
		return types.Ef(types.KindInvalidInput, "transaction %s is terminal", id)
	}

	if delay <= 0 {
		q.pushBackLocked(e.tx)
		return nil
	}

	e.tx.Status = types.TxStatusRequeued
	time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.closed {
			return
		}
		if e, ok := q.byID[id]; ok && e.tx.Status == types.TxStatusRequeued {
			q.pushBackLocked(e.tx)
		}
	})
	return nil
}

func (q *Queue) pushBackLocked(tx *types.Transaction) {
	tx.Status = types.TxStatusQueued
	q.seq++
	heap.Push(&q.pending, &item{tx: tx, seq: q.seq})
	q.notifyLocked()
}

// RecordProgress updates attempt bookkeeping on a live transaction
func (q *Queue) RecordProgress(id string, attempts int, lastError string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.byID[id]; ok && !e.tx.Status.Terminal() {
		e.tx.Attempts = attempts
		e.tx.LastError = lastError
	}
}

// Status returns the read-side view of a transaction
func (q *Queue) Status(id string) (types.TxStatusView, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[id]
	if !ok {
		return types.TxStatusView{}, false
	}
	return types.TxStatusView{
		ID:         e.tx.ID,
		ChainID:    e.tx.ChainID,
		Priority:   e.tx.Priority,
		Status:     e.tx.Status,
		Attempts:   e.tx.Attempts,
		Hash:       e.tx.Hash,
		LastError:  e.tx.LastError,
		ReceivedAt: e.tx.ReceivedAt,
	}, true
}

// LookupFingerprint returns the id already holding this raw payload
func (q *Queue) LookupFingerprint(raw []byte) (string, bool) {
	fp := FingerprintOf(raw)

	q.mu.Lock()
	defer q.mu.Unlock()
	id, ok := q.fpToID[fp]
	return id, ok
}

// Stats summarizes queue occupancy
func (q *Queue) Stats() types.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := types.QueueStats{
		Depth:    q.pending.Len(),
		Capacity: q.capacity,
	}
	for _, e := range q.byID {
		switch e.tx.Status {
		case types.TxStatusQueued:
			stats.Queued++
		case types.TxStatusProcessing:
			stats.Processing++
		case types.TxStatusRequeued:
			stats.Requeued++
		case types.TxStatusConfirmed:
			stats.Confirmed++
		case types.TxStatusFailedTerminal:
			stats.FailedTerminal++
		}
	}
	return stats
}

// Close wakes all claimers and rejects further enqueues
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.stopCh)
	q.notifyLocked()
}
