// Package metric provides Prometheus metrics for scrapedelta runs.
//
// Each process owns one Registry. In watch mode it is served over HTTP by
// Handler; after a one-shot run it is flushed to a node exporter textfile by
// WriteTextfile.
package metric
