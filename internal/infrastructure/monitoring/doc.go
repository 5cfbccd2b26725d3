/*
Package monitoring provides Prometheus metrics for a kernel instance.

# Overview

Each kernel owns a Metrics value registered on its own registry, so tests
can boot many kernels in one process without duplicate registration.

# Metrics

- System calls by name and result, with host-time latency
- Context switches, idle scheduler passes, timer ticks
- Environments by status, created and destroyed
- Page faults by outcome and free physical pages
- IPC sends by result
- Clock sets by clock and the monotonic uptime
- Console bytes written and dropped
- Monitor HTTP requests and console stream connections

# Usage

	metrics := monitoring.NewMetrics()

	timer := monitoring.NewTimer(metrics, "sys_yield")
	// ... handle the call ...
	timer.Stop("ok")

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
