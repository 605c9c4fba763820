package config

import "time"

// Config is the root configuration for scrapedelta.
type Config struct {
	Target   TargetSection   `koanf:"target" json:"target" yaml:"target"`
	Storage  StorageSection  `koanf:"storage" json:"storage" yaml:"storage"`
	Export   ExportSection   `koanf:"export" json:"export" yaml:"export"`
	Schedule ScheduleSection `koanf:"schedule" json:"schedule" yaml:"schedule"`
	Metrics  MetricsSection  `koanf:"metrics" json:"metrics" yaml:"metrics"`
	Log      LogSection      `koanf:"log" json:"log" yaml:"log"`
}

// TargetSection configures what is scraped and how.
type TargetSection struct {
	URL string `koanf:"url" json:"url" yaml:"url"`

	// Pages are extra URLs scraped after URL into the same snapshot.
	Pages []string `koanf:"pages" json:"pages,omitempty" yaml:"pages,omitempty"`

	// Fetcher is "http" (static HTML) or "browser" (rendered page).
	Fetcher string `koanf:"fetcher" json:"fetcher" yaml:"fetcher"`

	ItemSelector string      `koanf:"item_selector" json:"item_selector" yaml:"item_selector"`
	Fields       []FieldSpec `koanf:"fields" json:"fields" yaml:"fields"`

	// HashFields are the fingerprinted fields, in order.
	HashFields []string `koanf:"hash_fields" json:"hash_fields" yaml:"hash_fields"`

	Timeout       time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
	UserAgent     string        `koanf:"user_agent" json:"user_agent" yaml:"user_agent"`
	MaxAttempts   int           `koanf:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
	RatePerSecond float64       `koanf:"rate_per_second" json:"rate_per_second" yaml:"rate_per_second"`

	// CAFile is a PEM file or directory of extra roots for HTTPS targets.
	CAFile string `koanf:"ca_file" json:"ca_file,omitempty" yaml:"ca_file,omitempty"`

	// Browser-only settings.
	WaitSelector string `koanf:"wait_selector" json:"wait_selector,omitempty" yaml:"wait_selector,omitempty"`
	BrowserURL   string `koanf:"browser_url" json:"browser_url,omitempty" yaml:"browser_url,omitempty"`
	BrowserBin   string `koanf:"browser_bin" json:"browser_bin,omitempty" yaml:"browser_bin,omitempty"`
}

// FieldSpec extracts one field from an item element. An empty Selector reads
// the item element itself; an empty Attr reads its text.
type FieldSpec struct {
	Name     string `koanf:"name" json:"name" yaml:"name"`
	Selector string `koanf:"selector" json:"selector" yaml:"selector"`
	Attr     string `koanf:"attr" json:"attr,omitempty" yaml:"attr,omitempty"`
}

// FieldNames returns the configured field names in order.
func (t TargetSection) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		names = append(names, f.Name)
	}
	return names
}

// AllURLs returns URL followed by Pages.
func (t TargetSection) AllURLs() []string {
	out := make([]string, 0, 1+len(t.Pages))
	if t.URL != "" {
		out = append(out, t.URL)
	}
	return append(out, t.Pages...)
}

// StorageSection configures the local archive.
type StorageSection struct {
	OutputDir         string `koanf:"output_dir" json:"output_dir" yaml:"output_dir"`
	FingerprintColumn string `koanf:"fingerprint_column" json:"fingerprint_column" yaml:"fingerprint_column"`
	// KeepRuns is the retention used by "prune" when --keep is not given.
	// Zero keeps everything. Runs never prune on their own.
	KeepRuns int `koanf:"keep_runs" json:"keep_runs" yaml:"keep_runs"`
}

// ExportSection configures off-box copies of run artifacts.
type ExportSection struct {
	// Kind is "none", "s3" or "azblob".
	Kind   string `koanf:"kind" json:"kind" yaml:"kind"`
	Bucket string `koanf:"bucket" json:"bucket" yaml:"bucket"`
	Prefix string `koanf:"prefix" json:"prefix" yaml:"prefix"`

	// S3.
	Region          string `koanf:"region" json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint        string `koanf:"endpoint" json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKeyID     string `koanf:"access_key_id" json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `koanf:"secret_access_key" json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
	PathStyle       bool   `koanf:"path_style" json:"path_style,omitempty" yaml:"path_style,omitempty"`

	// Azure Blob Storage.
	AccountURL       string `koanf:"account_url" json:"account_url,omitempty" yaml:"account_url,omitempty"`
	AccountName      string `koanf:"account_name" json:"account_name,omitempty" yaml:"account_name,omitempty"`
	AccountKey       string `koanf:"account_key" json:"account_key,omitempty" yaml:"account_key,omitempty"`
	ConnectionString string `koanf:"connection_string" json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// EncryptionKey seals artifacts before upload when set.
	EncryptionKey string `koanf:"encryption_key" json:"encryption_key,omitempty" yaml:"encryption_key,omitempty"`

	Concurrency int           `koanf:"concurrency" json:"concurrency" yaml:"concurrency"`
	MaxAttempts int           `koanf:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
	Timeout     time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
}

// ScheduleSection configures watch mode.
type ScheduleSection struct {
	Interval time.Duration `koanf:"interval" json:"interval" yaml:"interval"`
}

// MetricsSection configures metric exposition.
type MetricsSection struct {
	// Addr serves /metrics and /healthz in watch mode when set.
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr,omitempty"`
	// Textfile is written after every run when set (node exporter format).
	Textfile string `koanf:"textfile" json:"textfile,omitempty" yaml:"textfile,omitempty"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
	// File, when true, also appends log lines to <output_dir>/run.log.
	File bool `koanf:"file" json:"file" yaml:"file"`
}
