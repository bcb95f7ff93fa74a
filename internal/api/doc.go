// Package api exposes the REST surface of the agent runtime: synchronous
// orchestration, asynchronous run submission and inspection, and session
// archive queries including per-session history analytics.
package api
