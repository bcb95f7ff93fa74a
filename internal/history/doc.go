// Package history models the append-only execution history of an agent
// session and the read-only analytics computed over it: outcome
// summaries, per-tool duration statistics, and error breakdowns by code
// and retry category. Analytics never mutate the history they read.
package history
