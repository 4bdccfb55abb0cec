/*
Package types defines the relay's domain entities and error taxonomy.

Entities: Transaction (immutable once accepted; only status, attempts, hash
and last error change), ChainConfig, Device, AuditRecord, and the read-side
views served by queries (TxStatusView, QueueStats, BreakerStatus).

The error taxonomy is one closed set of kinds. Transport errors are mapped
onto it structurally by the rpc package; every other component creates kinds
directly. Retryability is a property of the kind, so retry decisions never
inspect error text.
*/
package types
