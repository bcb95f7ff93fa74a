// Package guardrail enforces the safety policy of the orchestration
// loop at its three checkpoints: user input before any reasoning,
// every proposed tool call before execution, and the synthesized
// response before it leaves the engine. Policies are declarative and
// loadable from YAML.
package guardrail
