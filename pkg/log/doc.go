/*
Package log provides structured logging for the relay using zerolog.

Every subsystem logs through a component-tagged child logger drawn from a
closed set of Component names, so the component field is reliably greppable
across the whole service. Timestamps are UTC to match the relay's persisted
records.

# Usage

Initialize once at startup, then derive child loggers per component:

	log.Init(log.Config{Level: "info", JSONOutput: true})

	logger := log.For(log.Queue)
	logger.Info().Uint64("chain_id", 1114).Msg("Transaction enqueued")

Per-transaction paths use the correlation helper so tx_id and chain_id are
never missing from one side of a trace:

	log.Tx(log.Worker, tx.ID, tx.ChainID).Warn().Msg("Broadcast failed")
	log.Device(log.Relay, req.DeviceID).Warn().Msg("Rate limited")

Before Init the base logger is a no-op, so components may build their
loggers at construction time in any order.

# Output Modes

JSONOutput selects machine-readable JSON (production) or a human-readable
console writer with RFC3339 timestamps (development). The default output is
stdout; tests may inject a buffer via Config.Output.
*/
package log
