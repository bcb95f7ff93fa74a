// Package orchestrator implements the bounded agent loop at the heart
// of the engine: validate input, analyze intent, iterate tool calls up
// to a hard cap, synthesize a response, validate it, and persist the
// session history. Every stage failure is an expected outcome carried
// through the Result channel, never a panic.
package orchestrator
