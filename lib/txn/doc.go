// Package txn implements conditional create and delete on top of the watch
// primitive of a store (optimistic concurrency control).
//
// Every call opens a session that walks the states
//
//	INIT -> WATCHING -> CHECKED -> BUFFERING -> COMMITTING -> DONE
//	                                                      \-> RETRY -> INIT
//	(any) -> ABORTED
//
// WATCHING installs a watch on the key. CHECKED runs EXISTS inside the watched
// window, so no writer can slip in between the check and the commit unnoticed.
// A failed precondition (key exists on create, key missing on delete) aborts the
// session without retry. BUFFERING queues the single command and COMMITTING
// executes it atomically. A commit refused because the watched key changed
// moves the session to RETRY, which starts over with a fresh watch until
// MaxAttempts commits were refused. Running out of attempts is not an error,
// the call returns false.
//
// Every other failure (connection faults, an expired context) aborts the
// session immediately with store.ErrTransactionFailure wrapping the cause.
//
// Sessions are never shared between calls, an Engine can be used concurrently.
//
// Metrics (VictoriaMetrics):
//
//	drec_tx_total{op,outcome}
//	drec_tx_conflicts_total{op}
//	drec_tx_duration_seconds{op}
package txn
