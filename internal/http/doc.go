// Package http provides HTTP handlers and routing for the script engine
// REST API.
//
// This package implements all HTTP endpoints using the Gin framework,
// including health checks, capability discovery, script execution, and
// termination.
//
// Endpoints:
//   - Health: / and /health
//   - Status: /status (JSON metrics snapshot)
//   - Capabilities: /capabilities
//   - Execution: /execute, /executions/:id/terminate
//
// Example Usage:
//
//	handlers := http.NewHandlers(pool, registry, metrics, logger, version)
//	router.GET("/health", handlers.Health)
//	router.POST("/execute", handlers.Execute)
package http
