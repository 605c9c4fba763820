package config

import "time"

// Export kinds.
const (
	ExportNone   = "none"
	ExportS3     = "s3"
	ExportAzBlob = "azblob"
)

// Fetcher kinds.
const (
	FetcherHTTP    = "http"
	FetcherBrowser = "browser"
)

// Default configuration values.
const (
	DefaultURL          = "https://example.com/products"
	DefaultItemSelector = ".product-card"
	DefaultTimeout      = 60 * time.Second
	DefaultUserAgent    = "scrapedelta/1.0 (+https://github.com/yndnr/scrapedelta)"
	DefaultMaxAttempts  = 3
	DefaultRate         = 1.0

	DefaultOutputDir         = "artifacts"
	DefaultFingerprintColumn = "hash"

	DefaultExportConcurrency = 4
	DefaultExportAttempts    = 5
	DefaultExportTimeout     = 2 * time.Minute

	DefaultInterval = time.Hour

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default configuration: the product-card layout with
// name and price fields, fingerprinted in that order.
func Default() *Config {
	return &Config{
		Target: TargetSection{
			URL:          DefaultURL,
			Fetcher:      FetcherHTTP,
			ItemSelector: DefaultItemSelector,
			Fields: []FieldSpec{
				{Name: "name", Selector: ".product-name"},
				{Name: "price", Selector: ".price"},
			},
			HashFields:    []string{"name", "price"},
			Timeout:       DefaultTimeout,
			UserAgent:     DefaultUserAgent,
			MaxAttempts:   DefaultMaxAttempts,
			RatePerSecond: DefaultRate,
		},
		Storage: StorageSection{
			OutputDir:         DefaultOutputDir,
			FingerprintColumn: DefaultFingerprintColumn,
		},
		Export: ExportSection{
			Kind:        ExportNone,
			Concurrency: DefaultExportConcurrency,
			MaxAttempts: DefaultExportAttempts,
			Timeout:     DefaultExportTimeout,
		},
		Schedule: ScheduleSection{
			Interval: DefaultInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
