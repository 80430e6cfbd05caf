// Package main is the entry point for the scriptbox execution service.
//
// The service hosts an embedded JavaScript engine behind a REST and
// WebSocket API. Untrusted scripts run inside an isolated interpreter
// context with access to an explicit, host-controlled set of capability
// tables (storage, fetch, system).
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./scriptboxd -port 8090
//
//	# Development mode (colored logs, debug level)
//	./scriptboxd -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
