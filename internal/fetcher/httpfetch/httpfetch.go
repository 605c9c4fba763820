// Package httpfetch fetches static HTML pages over HTTP.
//
// Requests are paced by a token bucket and retried with exponential backoff
// on network errors, 429 and 5xx. Other 4xx responses fail immediately.
// file:// URLs are served from the local filesystem.
package httpfetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/fetcher/extract"
)

// DefaultUserAgent is sent when none is configured.
const DefaultUserAgent = "scrapedelta/1.0 (+https://github.com/yndnr/scrapedelta)"

// DefaultMaxBodySize caps a single page when Config.MaxBodySize is unset.
const DefaultMaxBodySize = 32 << 20

// Config configures a Fetcher.
type Config struct {
	Extractor     *extract.Extractor
	Timeout       time.Duration
	UserAgent     string
	MaxAttempts   int
	RatePerSecond float64

	// TLSConfig is used for HTTPS when Client is nil.
	TLSConfig *tls.Config
	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client
	// InitialInterval is the first retry delay; defaults to 500ms.
	InitialInterval time.Duration
	// MaxBodySize rejects larger pages instead of parsing a truncated one.
	MaxBodySize int64
	Logger      *slog.Logger
}

// Fetcher downloads pages and extracts records.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// StatusError is a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := cfg.Client
	if client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.TLSConfig != nil {
			tr.TLSClientConfig = cfg.TLSConfig
		}
		tr.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
		client = &http.Client{Transport: tr, Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Fetcher{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		log:     cfg.Logger.With("component", "httpfetch"),
	}
}

// Fetch downloads pageURL and extracts its records. Failures are ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) ([]map[string]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil || base.Scheme == "" {
		return nil, domain.ErrFetch.WithDetailsf("invalid url %q", pageURL).WithCause(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.InitialInterval

	attempt := 0
	rows, err := backoff.Retry(ctx, func() ([]map[string]string, error) {
		attempt++
		return f.fetchOnce(ctx, base)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(f.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			f.log.Warn("fetch failed, retrying",
				"url", pageURL, "attempt", attempt, "next", next, "error", err)
		}),
	)
	if err != nil {
		return nil, domain.ErrFetch.WithDetails(pageURL).WithCause(err)
	}
	f.log.Debug("fetched", "url", pageURL, "records", len(rows), "attempts", attempt)
	return rows, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, base *url.URL) ([]map[string]string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		serr := &StatusError{URL: base.String(), StatusCode: resp.StatusCode}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			return nil, serr
		default:
			return nil, backoff.Permanent(serr)
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.cfg.MaxBodySize {
		return nil, backoff.Permanent(domain.ErrFetch.WithDetailsf(
			"%s: page exceeds %d bytes", base, f.cfg.MaxBodySize))
	}

	rows, err := f.cfg.Extractor.Extract(bytes.NewReader(body), base)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return rows, nil
}

// Close releases idle connections.
func (f *Fetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}
