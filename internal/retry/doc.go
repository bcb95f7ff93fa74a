// Package retry holds the static error-classification tables and the
// backoff computation shared by the run processor (live retry decisions)
// and the history analytics (offline retry-candidate flagging). Everything
// in this package is pure and deterministic: no clock reads, no I/O.
package retry
