// Package observability provides structured logging and metrics for the
// access gateway.
//
// This package implements:
//   - zap logger construction from configuration (JSON or console)
//   - Prometheus counters for route, feature and gate decisions
//   - Session cache and identity load instrumentation
//
// Metrics live in a private registry exposed through Metrics.Handler.
package observability
