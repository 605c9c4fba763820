package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/yndnr/scrapedelta/internal/config"
	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/fetcher/browser"
	"github.com/yndnr/scrapedelta/internal/fetcher/extract"
	"github.com/yndnr/scrapedelta/internal/fetcher/httpfetch"
	"github.com/yndnr/scrapedelta/internal/infra/tlsroots"
)

// Fetcher retrieves one page and extracts its records.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]map[string]string, error)
	Close() error
}

// New builds the fetcher named by target.Fetcher.
func New(target config.TargetSection, logger *slog.Logger) (Fetcher, error) {
	ex, err := ExtractorFor(target)
	if err != nil {
		return nil, err
	}

	switch target.Fetcher {
	case "", config.FetcherHTTP:
		var tlsCfg *tls.Config
		if target.CAFile != "" {
			pool, err := tlsroots.Load(target.CAFile)
			if err != nil {
				return nil, domain.ErrConfig.WithCause(err)
			}
			tlsCfg = pool.TLSConfig()
		}
		return httpfetch.New(httpfetch.Config{
			Extractor:     ex,
			Timeout:       target.Timeout,
			UserAgent:     target.UserAgent,
			MaxAttempts:   target.MaxAttempts,
			RatePerSecond: target.RatePerSecond,
			TLSConfig:     tlsCfg,
			Logger:        logger,
		}), nil
	case config.FetcherBrowser:
		return browser.New(browser.Config{
			Extractor:    ex,
			Timeout:      target.Timeout,
			WaitSelector: target.WaitSelector,
			RemoteURL:    target.BrowserURL,
			Bin:          target.BrowserBin,
			Logger:       logger,
		}), nil
	default:
		return nil, domain.ErrConfig.WithDetailsf("unknown fetcher %q", target.Fetcher)
	}
}

// ExtractorFor builds the field extractor for target.
func ExtractorFor(target config.TargetSection) (*extract.Extractor, error) {
	fields := make([]extract.Field, 0, len(target.Fields))
	for _, f := range target.Fields {
		fields = append(fields, extract.Field{Name: f.Name, Selector: f.Selector, Attr: f.Attr})
	}
	ex, err := extract.New(target.ItemSelector, fields)
	if err != nil {
		return nil, domain.ErrConfig.WithCause(fmt.Errorf("target: %w", err))
	}
	return ex, nil
}

// FetchAll fetches every url in order and concatenates the rows. The first
// failure aborts the whole fetch.
func FetchAll(ctx context.Context, f Fetcher, urls []string) ([]map[string]string, error) {
	var rows []map[string]string
	for _, u := range urls {
		page, err := f.Fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
	}
	return rows, nil
}
