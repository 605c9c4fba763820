package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/yndnr/scrapedelta/internal/core/domain"
)

// Verify validates the configuration. Every problem is reported, wrapped in
// domain.ErrConfig.
func Verify(cfg *Config) error {
	errs := errors.Join(
		verifyTarget(&cfg.Target),
		verifyStorage(&cfg.Storage),
		verifyExport(&cfg.Export),
		verifySchedule(&cfg.Schedule),
		verifyLog(&cfg.Log),
	)
	if errs != nil {
		return domain.ErrConfig.WithCause(errs)
	}
	return nil
}

func verifyTarget(t *TargetSection) error {
	var errs []error
	if len(t.AllURLs()) == 0 {
		errs = append(errs, errors.New("target.url is required"))
	}
	for _, raw := range t.AllURLs() {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file") {
			errs = append(errs, fmt.Errorf("target url %q must be an http, https or file URL", raw))
		}
	}

	switch t.Fetcher {
	case FetcherHTTP, FetcherBrowser:
	default:
		errs = append(errs, fmt.Errorf("target.fetcher %q must be %q or %q", t.Fetcher, FetcherHTTP, FetcherBrowser))
	}

	if strings.TrimSpace(t.ItemSelector) == "" {
		errs = append(errs, errors.New("target.item_selector is required"))
	}
	if len(t.Fields) == 0 {
		errs = append(errs, errors.New("target.fields must name at least one field"))
	}
	seen := map[string]bool{}
	for i, f := range t.Fields {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("target.fields[%d].name is required", i))
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("target.fields: duplicate field %q", f.Name))
		}
		seen[f.Name] = true
	}

	if len(t.HashFields) == 0 {
		errs = append(errs, errors.New("target.hash_fields must name at least one field"))
	}
	names := t.FieldNames()
	for _, h := range t.HashFields {
		if !slices.Contains(names, h) {
			errs = append(errs, fmt.Errorf("target.hash_fields: %q is not an extracted field", h))
		}
	}

	if t.Timeout <= 0 {
		errs = append(errs, errors.New("target.timeout must be positive"))
	}
	if t.MaxAttempts < 1 {
		errs = append(errs, errors.New("target.max_attempts must be at least 1"))
	}
	if t.RatePerSecond < 0 {
		errs = append(errs, errors.New("target.rate_per_second must not be negative"))
	}
	return errors.Join(errs...)
}

func verifyStorage(s *StorageSection) error {
	var errs []error
	if s.OutputDir == "" {
		errs = append(errs, errors.New("storage.output_dir is required"))
	}
	if s.FingerprintColumn == "" {
		errs = append(errs, errors.New("storage.fingerprint_column is required"))
	}
	if s.KeepRuns < 0 {
		errs = append(errs, errors.New("storage.keep_runs must not be negative"))
	}
	return errors.Join(errs...)
}

func verifyExport(e *ExportSection) error {
	var errs []error
	switch e.Kind {
	case ExportNone:
		return nil
	case ExportS3:
		if e.Bucket == "" {
			errs = append(errs, errors.New("export.bucket is required for s3"))
		}
		// Static keys are optional (the default AWS chain may supply them)
		// but must come as a pair.
		if (e.AccessKeyID == "") != (e.SecretAccessKey == "") {
			errs = append(errs, errors.New("export.access_key_id and export.secret_access_key must be set together"))
		}
	case ExportAzBlob:
		if e.Bucket == "" {
			errs = append(errs, errors.New("export.bucket (container) is required for azblob"))
		}
		hasConnStr := e.ConnectionString != ""
		hasSharedKey := e.AccountKey != "" && e.AccountName != "" && e.AccountURL != ""
		if !hasConnStr && !hasSharedKey {
			errs = append(errs, errors.New("azblob credentials missing: set export.connection_string or export.account_url, export.account_name and export.account_key"))
		}
	default:
		errs = append(errs, fmt.Errorf("export.kind %q must be one of none, s3, azblob", e.Kind))
	}
	if e.Concurrency < 1 {
		errs = append(errs, errors.New("export.concurrency must be at least 1"))
	}
	if e.MaxAttempts < 1 {
		errs = append(errs, errors.New("export.max_attempts must be at least 1"))
	}
	return errors.Join(errs...)
}

func verifySchedule(s *ScheduleSection) error {
	if s.Interval < 0 {
		return errors.New("schedule.interval must not be negative")
	}
	return nil
}

func verifyLog(l *LogSection) error {
	var errs []error
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not a level", l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", l.Format))
	}
	return errors.Join(errs...)
}
