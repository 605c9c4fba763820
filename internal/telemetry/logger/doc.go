// Package logger provides structured logging for scrapedelta.
//
// It wraps log/slog behind a small Logger interface:
//
//   - logger.go: construction, levels, the process-wide default
//   - context.go: run id and trace id propagation
//   - redact.go: masking of credentials before they reach any sink
//   - runlog.go: the append-only run.log in the output directory
package logger
