// Package observability wires the service's operational surface:
// Prometheus metrics, liveness/readiness probes, structured logging,
// OpenTelemetry export and graceful shutdown.
package observability
