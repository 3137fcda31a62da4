// Package observability provides structured logging, Prometheus metrics,
// health checks, and OpenTelemetry setup for the EduGate services.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.ParseLevel(cfg.LogLevel), os.Stdout)
//	logger.WithField("role", "agent").Warn("permission denied")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.AuditWriteFailed()
//
// A nil *Metrics is accepted everywhere and records nothing.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("mongo", true, store.HealthCheck)
//	checker.AddCheck("redis", false, observability.RedisCheck(client))
package observability
