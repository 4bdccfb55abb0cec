/*
Package retry executes operations under a retry policy with exponential
backoff, gated by the circuit breaker registry.

A policy carries the attempt bound, the delay schedule (initial delay,
multiplier, cap, optional jitter) and two timeouts: one per attempt, one for
the whole call. The delay schedule is cenkalti/backoff's exponential
back-off; sleeping is context-aware, so caller cancellation and the overall
deadline both interrupt a wait.

The breaker is consulted once per Do call: an open breaker rejects before
the first attempt, and the whole sequence records a single outcome when it
finishes. Errors are classified by kind: retryable kinds (Network,
RpcTransient) re-attempt until the policy is exhausted, everything else
returns immediately. Exhaustion returns RetryExhausted wrapping the last
underlying error; the overall deadline returns OverallTimeout and wins every
tie.
*/
package retry
