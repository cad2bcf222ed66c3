package main

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/quirze62/nodus/internal/cache"
	"github.com/quirze62/nodus/internal/client"
)

// HTTP metrics
var (
	httpRequestsTotal atomic.Int64
	httpErrorsTotal   atomic.Int64
)

var serverStartTime = time.Now()

// metricsHandler serves Prometheus-compatible metrics
func metricsHandler(c *client.Client, cacheBackendType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		// Build info metric
		fmt.Fprintf(w, "# HELP nodus_build_info Build and configuration information\n")
		fmt.Fprintf(w, "# TYPE nodus_build_info gauge\n")
		fmt.Fprintf(w, "nodus_build_info{cache_backend=%q,go_version=%q} 1\n\n", cacheBackendType, runtime.Version())

		// Process metrics
		fmt.Fprintf(w, "# HELP process_start_time_seconds Unix timestamp of process start\n")
		fmt.Fprintf(w, "# TYPE process_start_time_seconds gauge\n")
		fmt.Fprintf(w, "process_start_time_seconds %d\n\n", serverStartTime.Unix())

		fmt.Fprintf(w, "# HELP process_uptime_seconds Time since process started\n")
		fmt.Fprintf(w, "# TYPE process_uptime_seconds gauge\n")
		fmt.Fprintf(w, "process_uptime_seconds %.0f\n\n", time.Since(serverStartTime).Seconds())

		// Go runtime metrics
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		fmt.Fprintf(w, "# HELP go_goroutines Number of active goroutines\n")
		fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
		fmt.Fprintf(w, "go_goroutines %d\n\n", runtime.NumGoroutine())

		fmt.Fprintf(w, "# HELP go_memstats_alloc_bytes Currently allocated memory in bytes\n")
		fmt.Fprintf(w, "# TYPE go_memstats_alloc_bytes gauge\n")
		fmt.Fprintf(w, "go_memstats_alloc_bytes %d\n\n", memStats.Alloc)

		fmt.Fprintf(w, "# HELP go_memstats_sys_bytes Total memory obtained from the OS\n")
		fmt.Fprintf(w, "# TYPE go_memstats_sys_bytes gauge\n")
		fmt.Fprintf(w, "go_memstats_sys_bytes %d\n\n", memStats.Sys)

		fmt.Fprintf(w, "# HELP go_gc_cycles_total Number of completed GC cycles\n")
		fmt.Fprintf(w, "# TYPE go_gc_cycles_total counter\n")
		fmt.Fprintf(w, "go_gc_cycles_total %d\n\n", memStats.NumGC)

		// HTTP metrics
		fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
		fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
		fmt.Fprintf(w, "http_requests_total %d\n\n", httpRequestsTotal.Load())

		fmt.Fprintf(w, "# HELP http_errors_total Total number of HTTP 5xx errors\n")
		fmt.Fprintf(w, "# TYPE http_errors_total counter\n")
		fmt.Fprintf(w, "http_errors_total %d\n\n", httpErrorsTotal.Load())

		// Relay pool metrics
		fmt.Fprintf(w, "# HELP nodus_relay_connections_active Number of active relay connections\n")
		fmt.Fprintf(w, "# TYPE nodus_relay_connections_active gauge\n")
		fmt.Fprintf(w, "nodus_relay_connections_active %d\n\n", c.ActiveConnections())

		healthy, unhealthy, avgMs := c.HealthStats()
		fmt.Fprintf(w, "# HELP nodus_relays_healthy Number of healthy relays\n")
		fmt.Fprintf(w, "# TYPE nodus_relays_healthy gauge\n")
		fmt.Fprintf(w, "nodus_relays_healthy %d\n\n", healthy)

		fmt.Fprintf(w, "# HELP nodus_relays_unhealthy Number of unhealthy relays\n")
		fmt.Fprintf(w, "# TYPE nodus_relays_unhealthy gauge\n")
		fmt.Fprintf(w, "nodus_relays_unhealthy %d\n\n", unhealthy)

		fmt.Fprintf(w, "# HELP nodus_relay_avg_response_ms Average relay response time in milliseconds\n")
		fmt.Fprintf(w, "# TYPE nodus_relay_avg_response_ms gauge\n")
		fmt.Fprintf(w, "nodus_relay_avg_response_ms %d\n\n", avgMs)

		// Per-relay metrics with labels
		relayDetails := c.RelayStatuses()
		if len(relayDetails) > 0 {
			fmt.Fprintf(w, "# HELP nodus_relay_response_ms Response time per relay in milliseconds\n")
			fmt.Fprintf(w, "# TYPE nodus_relay_response_ms gauge\n")
			for _, detail := range relayDetails {
				fmt.Fprintf(w, "nodus_relay_response_ms{relay=%q} %d\n", detail.URL, detail.AvgResponseMs)
			}
			fmt.Fprintf(w, "\n")

			fmt.Fprintf(w, "# HELP nodus_relay_requests_total Total requests per relay\n")
			fmt.Fprintf(w, "# TYPE nodus_relay_requests_total counter\n")
			for _, detail := range relayDetails {
				fmt.Fprintf(w, "nodus_relay_requests_total{relay=%q} %d\n", detail.URL, detail.RequestCount)
			}
			fmt.Fprintf(w, "\n")

			fmt.Fprintf(w, "# HELP nodus_relay_healthy Whether relay is healthy (1) or not (0)\n")
			fmt.Fprintf(w, "# TYPE nodus_relay_healthy gauge\n")
			for _, detail := range relayDetails {
				healthyVal := 0
				if detail.Healthy {
					healthyVal = 1
				}
				fmt.Fprintf(w, "nodus_relay_healthy{relay=%q} %d\n", detail.URL, healthyVal)
			}
			fmt.Fprintf(w, "\n")
		}

		// Event metrics
		fmt.Fprintf(w, "# HELP nodus_events_dropped_total Events dropped due to full channels\n")
		fmt.Fprintf(w, "# TYPE nodus_events_dropped_total counter\n")
		fmt.Fprintf(w, "nodus_events_dropped_total %d\n\n", c.DroppedEvents())

		fmt.Fprintf(w, "# HELP nodus_events_buffered Events held in the timeline buffer\n")
		fmt.Fprintf(w, "# TYPE nodus_events_buffered gauge\n")
		fmt.Fprintf(w, "nodus_events_buffered %d\n\n", c.BufferedEventCount())

		// Cache metrics
		cacheHits, cacheMisses := cache.Stats()

		fmt.Fprintf(w, "# HELP cache_hits_total Total cache hits\n")
		fmt.Fprintf(w, "# TYPE cache_hits_total counter\n")
		fmt.Fprintf(w, "cache_hits_total %d\n\n", cacheHits)

		fmt.Fprintf(w, "# HELP cache_misses_total Total cache misses\n")
		fmt.Fprintf(w, "# TYPE cache_misses_total counter\n")
		fmt.Fprintf(w, "cache_misses_total %d\n\n", cacheMisses)

		var hitRatio float64
		if total := cacheHits + cacheMisses; total > 0 {
			hitRatio = float64(cacheHits) / float64(total)
		}
		fmt.Fprintf(w, "# HELP cache_hit_ratio Cache hit ratio (0-1)\n")
		fmt.Fprintf(w, "# TYPE cache_hit_ratio gauge\n")
		fmt.Fprintf(w, "cache_hit_ratio %.4f\n", hitRatio)
	}
}
