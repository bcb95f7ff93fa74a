// Package memory persists the execution history of agent sessions
// across runs. The Store contract speaks plain Go errors: persistence
// faults are infrastructure failures, and the orchestration loop maps
// them onto its own error codes at the call site. Backends cover an
// in-process map, Redis and MySQL.
package memory
