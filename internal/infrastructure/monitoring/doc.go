/*
Package monitoring provides Prometheus metrics for the bridge: HTTP
request latency and throughput, WebSocket connection and message counts,
instruction delivery, context intake, and screenshot gating.

	metrics := monitoring.New()
	router.Use(monitoring.Middleware(metrics))
	metrics.RecordInstruction("form_assistance")

Each Metrics instance owns its own registry, so expose it through the
instance handler:

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
