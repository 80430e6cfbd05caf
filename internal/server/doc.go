// Package server wires the engine, capability registry, metrics, and HTTP
// surface into a runnable service.
//
// It assembles the Gin router with CORS, rate limiting, request IDs, and
// Prometheus middleware, registers the built-in capability providers, and
// owns graceful shutdown of the sandbox pool.
package server
