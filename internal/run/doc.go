// Package run implements the asynchronous execution pipeline around
// the orchestration engine: durable run records, a queue abstraction
// with memory, Redis and RabbitMQ backends, a submission service, and
// a processor that claims runs, drives the engine, and applies the
// retry policy on expected failures.
package run
