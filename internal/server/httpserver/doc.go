// Package httpserver serves the watch-mode status endpoints:
//
//	GET /healthz   process is up
//	GET /readyz    503 until a run has succeeded, or after the last run failed
//	GET /status    last run summary and next scheduled run (JSON)
//	GET /runs      recent runs from the run index (JSON, ?limit=N)
//	GET /metrics   Prometheus exposition
package httpserver
