// Package api contains the transport surfaces for the engine.
//
// The rest subpackage serves the caller-facing operations over HTTP with
// JSON payloads. The mcp subpackage serves the same operations as MCP tools
// over a stdio transport for agent clients. Both are thin adapters over
// internal/engine; neither holds domain logic of its own.
package api
