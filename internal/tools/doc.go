// Package tools models the tool catalog consumed by the orchestration
// loop: tool definitions with parameter schemas, proposed tool calls,
// recorded executions, and the Gateway contract used to list and invoke
// tools. Two gateway implementations are provided: an HTTP client for a
// remote MCP-style tool server and an in-process registry for built-in
// tools and tests.
package tools
