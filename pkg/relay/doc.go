/*
Package relay wires the core components into the running service and
implements the submission pipeline.

Relay owns the config manager, the integrity store, the transaction queue,
the rate limiter, the breaker registry, the RPC client and the worker pool.
Transport adapters (HTTP today, BLE tomorrow) call the same in-process
contract: Submit, Status, QueueStats, CircuitStatus, ConfigGet/ConfigUpdate,
AuditRecent, Verify.

# Submission pipeline

Submit short-circuits on the first failure, in this order:

 1. Rate limiter admission for (device, "submit")
 2. Shape validation: well-formed hex within bounds, known chain,
    recognized priority, metadata under 4 KiB
 3. Envelope sanity: the payload must parse as a typed, RLP-encoded
    transaction envelope (syntactic only)
 4. Durable pending record through the integrity store
 5. Enqueue, which dedupes by payload fingerprint and applies QueueFull
    backpressure

A payload the queue already knows is rejected as Duplicate between steps 3
and 4, so it leaves no pending record and no audit entry. Only after all
five steps does the caller receive Accepted with the assigned id. A failure
in step 4 or 5 is audited as SubmissionAbandoned and the submission is not
considered accepted: accepts are synchronous and at-most-once.
*/
package relay
