/*
Package storage provides content-addressed file persistence for the relay.

All relay state lives in a flat data directory of JSON documents. Every write
is hashed with SHA-256 and committed via temp-file-and-rename; the hash, size
and modification time are recorded in a manifest (integrity.json) so
tampering or corruption is detectable at any time.

# Layout

	<dataDir>/
	  transactions.json   accepted transactions and their outcomes
	  devices.json        submitting devices
	  metrics.json        persisted relay counters
	  incidents.json      recorded incidents
	  integrity.json      manifest: file -> {sha256, size, modified_at}
	  audit.log           line-delimited JSON audit records
	  backups/            backup_<YYYYMMDD_HHMMSS>.tar.gz snapshots

# Write discipline

Write computes the hash, writes a temp file in the same directory, fsyncs,
renames over the target and then updates the manifest, all under one write
lock. A failed write leaves the previous version and its manifest entry
untouched. Reads take no lock and return the bytes on disk verbatim.

VerifyAll recomputes every manifest entry and reports divergences as
violations; each one is appended to the audit log as an IntegrityViolation.
The store never repairs divergent files on its own.

# Audit log

AppendAudit is an O(1) append of one JSON line. The most recent 10,000
records are mirrored in an in-memory ring for query paths. TrimAudit drops
records past the retention horizon by rewriting the log atomically,
preserving order, and logs the trim itself as a Retention event.

# Backups

Backup archives every stored document plus the audit log into a tar.gz under
backups/. Cleanup removes archives older than the configured retention, and
BackupScheduler runs both on a fixed interval.
*/
package storage
