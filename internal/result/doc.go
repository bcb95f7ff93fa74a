// Package result defines the dual-channel outcome type used by every
// cross-component operation in the OpenAgent runtime. Expected failures
// (validation errors, network errors, policy rejections, reasoning errors)
// travel through Result values instead of Go errors or panics; genuine
// programmer errors remain panics and are only recovered at the
// orchestrator's outermost boundary.
package result
