/*
Package breaker provides per-operation circuit breakers for the relay's
fallible critical paths.

Each operation name (for example "eth_sendRawTransaction:1114") gets its own
three-state breaker, created on first use. A streak of failures opens the
breaker; while open, calls are rejected immediately with a CircuitOpen error
and no outbound work happens. After the open window the next admission runs
as a half-open probe; a streak of probe successes closes the breaker again,
any probe failure reopens it.

The state machine is sony/gobreaker's two-step breaker: Allow admits a call
and hands back a done callback, so the retry manager can gate a whole retry
sequence behind one admission and record one outcome for it. The breaker
never retries anything itself.
*/
package breaker
