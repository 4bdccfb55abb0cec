/*
Package worker runs the relay's bounded pool of queue consumers.

Each worker loops: claim the next runnable transaction from the queue, send
it through the retry manager and RPC client, then finalize. A successful
broadcast records the transaction hash and, when the chain requires
confirmations, waits for the receipt to reach the target depth before
marking the transaction Confirmed. Terminal failures (retry exhaustion,
semantic rejection, overall timeout) mark it FailedTerminal. An open circuit
requeues the transaction for after the breaker's open window instead of
failing it.

Workers are symmetric and stateless; the queue provides all coordination.
Shutdown stops claiming immediately, gives in-flight broadcasts a grace
period to finish, and then fails open with a warning.
*/
package worker
