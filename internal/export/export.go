package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/yndnr/scrapedelta/internal/config"
	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/pkg/seal"
)

// Sink uploads one artifact. logicalName is the slash-separated name under
// the destination prefix, e.g. "archive/snapshot_20260101_120000.csv".
type Sink interface {
	Export(ctx context.Context, artifactPath, logicalName string) error
}

// Artifact is one file to export.
type Artifact struct {
	Path        string
	LogicalName string
}

// Result is the outcome of exporting one artifact.
type Result struct {
	Artifact
	Err      error
	Duration time.Duration
}

// ExportAll exports artifacts through sink with at most concurrency uploads
// in flight. Results are in artifact order. The returned error joins every
// failure and is nil when all succeeded.
func ExportAll(ctx context.Context, sink Sink, artifacts []Artifact, concurrency int) ([]Result, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]Result, len(artifacts))
	p := pool.New().WithErrors().WithMaxGoroutines(concurrency)
	for i, a := range artifacts {
		p.Go(func() error {
			start := time.Now()
			err := sink.Export(ctx, a.Path, a.LogicalName)
			results[i] = Result{Artifact: a, Err: err, Duration: time.Since(start)}
			if err != nil {
				return fmt.Errorf("%s: %w", a.LogicalName, err)
			}
			return nil
		})
	}
	return results, p.Wait()
}

// Noop accepts every artifact without doing anything.
type Noop struct{}

// Export implements Sink.
func (Noop) Export(context.Context, string, string) error { return nil }

// objectKey joins the configured prefix and a logical name.
func objectKey(prefix, logicalName string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return logicalName
	}
	return path.Join(prefix, logicalName)
}

// New builds the sink described by cfg. Credentials are resolved here so a
// misconfigured destination fails at startup with domain.ErrConfig.
func New(ctx context.Context, cfg config.ExportSection, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		base Sink
		err  error
	)
	switch cfg.Kind {
	case "", config.ExportNone:
		return Noop{}, nil
	case config.ExportS3:
		base, err = NewS3(ctx, S3Config{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			PathStyle:       cfg.PathStyle,
		})
	case config.ExportAzBlob:
		base, err = NewAzBlob(AzBlobConfig{
			Container:        cfg.Bucket,
			Prefix:           cfg.Prefix,
			AccountURL:       cfg.AccountURL,
			AccountName:      cfg.AccountName,
			AccountKey:       cfg.AccountKey,
			ConnectionString: cfg.ConnectionString,
		})
	default:
		return nil, domain.ErrConfig.WithDetailsf("unknown export kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	if cfg.EncryptionKey != "" {
		s, err := seal.New(cfg.EncryptionKey)
		if err != nil {
			return nil, domain.ErrConfig.WithDetails("export.encryption_key").WithCause(err)
		}
		base = NewSealing(base, s)
	}
	return NewRetrying(base, RetryConfig{
		MaxAttempts: cfg.MaxAttempts,
		Timeout:     cfg.Timeout,
		Logger:      logger,
	}), nil
}

// statusCoder is implemented by smithy-go response errors.
type statusCoder interface {
	HTTPStatusCode() int
}

// isPermanent reports whether retrying err cannot help: configuration
// problems and 4xx responses other than 408 and 429.
func isPermanent(err error) bool {
	if errors.Is(err, domain.ErrConfig) || errors.Is(err, context.Canceled) {
		return true
	}
	code := 0
	var sc statusCoder
	if errors.As(err, &sc) {
		code = sc.HTTPStatusCode()
	}
	if c := azureStatus(err); c != 0 {
		code = c
	}
	return code >= 400 && code < 500 && code != 408 && code != 429
}
