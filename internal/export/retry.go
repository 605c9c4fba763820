package export

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/yndnr/scrapedelta/internal/core/domain"
)

// RetryConfig configures a Retrying sink.
type RetryConfig struct {
	MaxAttempts int
	// Timeout bounds each attempt; zero means no per-attempt limit.
	Timeout         time.Duration
	InitialInterval time.Duration
	Logger          *slog.Logger
}

// Retrying retries transient failures of the wrapped sink with exponential
// backoff and wraps the final failure in domain.ErrExport.
type Retrying struct {
	next Sink
	cfg  RetryConfig
}

// NewRetrying wraps next.
func NewRetrying(next Sink, cfg RetryConfig) *Retrying {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Retrying{next: next, cfg: cfg}
}

// Export implements Sink.
func (r *Retrying) Export(ctx context.Context, artifactPath, logicalName string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := r.once(ctx, artifactPath, logicalName)
		if err != nil && isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.cfg.Logger.Warn("export failed, retrying",
				"artifact", logicalName, "attempt", attempt, "next", next, "error", err)
		}),
	)
	if err != nil {
		return domain.ErrExport.WithDetails(logicalName).WithCause(err)
	}
	return nil
}

func (r *Retrying) once(ctx context.Context, artifactPath, logicalName string) error {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	return r.next.Export(ctx, artifactPath, logicalName)
}
