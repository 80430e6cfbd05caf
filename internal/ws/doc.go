// Package ws provides the WebSocket streaming interface for script
// execution.
//
// A client connects to /stream, submits scripts as JSON messages, and
// receives outcomes asynchronously, correlated by execution id. Several
// scripts may be in flight on one connection at a time.
//
// Message types:
//   - client → server: execute, terminate, ping
//   - server → client: system, accepted, outcome, pong, error
package ws
