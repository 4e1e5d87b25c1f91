// Package timeouts defines shared timeout constants used across commands.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// Commit caps the wait time for a persistence commit. A commit that exceeds
// this window is reported as a persistence failure, never silently retried.
const Commit = 5 * time.Second

// Load caps the wait time for loading a character document.
const Load = 2 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Sweep caps a full integrity sweep batch unless the caller overrides it.
const Sweep = 10 * time.Minute
