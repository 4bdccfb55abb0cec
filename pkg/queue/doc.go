/*
Package queue implements the relay's transaction queue: a priority heap with
per-chain FIFO ordering, duplicate detection and a status index.

The queue is the coordination point between the submission pipeline (producer)
and the worker pool (consumers). It guarantees that transactions bound for the
same chain complete in submit order, while transactions for different chains
proceed independently at their configured priority.

# Architecture

	┌─────────────────── TRANSACTION QUEUE ────────────────────┐
	│                                                           │
	│  ┌─────────────────────────────────────────┐             │
	│  │           Priority Heap                  │             │
	│  │  Critical > High > Normal > Low          │             │
	│  │  FIFO within each priority               │             │
	│  └──────────────────┬──────────────────────┘             │
	│                     │ Claim()                             │
	│  ┌──────────────────▼──────────────────────┐             │
	│  │         Per-Chain FIFO Tails             │             │
	│  │  chain 1114:  [t1, t4, t9]               │             │
	│  │  chain 84532: [t2]                       │             │
	│  │  runnable = heads the FIFO of its chain  │             │
	│  └──────────────────┬──────────────────────┘             │
	│                     │                                     │
	│  ┌──────────────────▼──────────────────────┐             │
	│  │            Status Index                  │             │
	│  │  id -> {status, attempts, hash, error}   │             │
	│  │  sha256(raw) <-> id  (dedupe)            │             │
	│  └─────────────────────────────────────────┘             │
	└───────────────────────────────────────────────────────────┘

# Ordering

For two transactions T1, T2 with the same chain id where T1 was received
first, T2 enters Processing only after T1 reaches Confirmed or
FailedTerminal. A high-priority transaction blocked behind an earlier
same-chain transaction never starves other chains: Claim skips it and hands
out the best runnable entry instead.

# Lifecycle

	Queued -> Processing -> Confirmed
	                     -> FailedTerminal
	                     -> Requeued -> Queued

Terminal states are absorbing. Requeue keeps the transaction's chain FIFO
position so a delayed retry cannot leapfrog later submissions of the same
chain.

# Dedupe

The canonical fingerprint of a transaction is the SHA-256 of its raw signed
bytes. Both directions (id to fingerprint, fingerprint to id) are indexed, so
a resubmission of bytes the relay has ever accepted is rejected with the
original id in O(1). This is what makes the accept path at-most-once.

# Concurrency

One mutex guards the heap, the FIFOs and the index; no I/O happens under it.
Claim blocks on a broadcast channel that is closed and replaced on every
state change, so waiting workers never miss a wakeup and always observe
context cancellation.
*/
package queue
