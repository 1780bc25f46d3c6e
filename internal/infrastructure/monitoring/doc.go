/*
Package monitoring provides Prometheus-based metrics collection.

Tracked surfaces:

  - HTTP request metrics (latency, throughput, size)
  - Broker metrics (contexts created, proxy calls by kind and outcome)
  - Module loader metrics (loads by runtime and outcome)
  - Notification and scheduler gauges
  - System uptime

Usage:

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
