package snapshot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/pkg/fingerprint"
)

// Codec maps records to and from CSV rows.
type Codec struct {
	// Fields is the preferred column order.
	Fields []string
	// HashFields are the fingerprinted fields, used when an artifact lacks
	// the fingerprint column.
	HashFields []string
	// FingerprintColumn names the fingerprint column.
	FingerprintColumn string
}

// NewCodec returns the codec described by cfg, applying the fingerprint
// column and hash field defaults.
func NewCodec(cfg Config) Codec {
	c := Codec{
		Fields:            cfg.Fields,
		HashFields:        cfg.HashFields,
		FingerprintColumn: cfg.FingerprintColumn,
	}
	if c.FingerprintColumn == "" {
		c.FingerprintColumn = DefaultFPColumn
	}
	if len(c.HashFields) == 0 {
		c.HashFields = fingerprint.DefaultKeys
	}
	return c
}

// Columns returns the header for records: configured fields first, then any
// other field seen in records in sorted order, then the fingerprint column.
func (c Codec) Columns(records []domain.Record) []string {
	cols := make([]string, 0, len(c.Fields)+1)
	known := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		if f == c.FingerprintColumn || known[f] {
			continue
		}
		known[f] = true
		cols = append(cols, f)
	}

	var extra []string
	for _, r := range records {
		for k := range r.Fields {
			if k == c.FingerprintColumn || known[k] {
				continue
			}
			known[k] = true
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)

	cols = append(cols, extra...)
	return append(cols, c.FingerprintColumn)
}

// Encode writes records as CSV to w and returns the number of data rows.
func (c Codec) Encode(w io.Writer, records []domain.Record) (int, error) {
	cols := c.Columns(records)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(cols))
	last := len(cols) - 1
	for _, r := range records {
		for i, col := range cols[:last] {
			row[i] = r.Fields[col]
		}
		row[last] = r.Fingerprint.String()
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush: %w", err)
	}
	return len(records), nil
}

// Decode reads CSV records from r. Rows without a fingerprint column are
// fingerprinted from HashFields. An input without a header row is malformed.
func (c Codec) Decode(r io.Reader) ([]domain.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.ErrArtifactMalformed.WithDetails("missing header row")
	}
	if err != nil {
		return nil, domain.ErrArtifactMalformed.WithCause(err)
	}
	if len(header) > 0 {
		// Files saved by spreadsheet tools may carry a BOM.
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	fpIdx := slices.Index(header, c.FingerprintColumn)
	var records []domain.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.ErrArtifactMalformed.WithCause(err)
		}

		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i == fpIdx {
				continue
			}
			fields[col] = row[i]
		}

		if fpIdx < 0 {
			records = append(records, domain.NewRecord(fields, c.HashFields))
			continue
		}
		fp, err := fingerprint.Parse(row[fpIdx])
		if err != nil {
			return nil, domain.ErrArtifactMalformed.WithDetailsf("line %d: bad %s value %q", line, c.FingerprintColumn, row[fpIdx])
		}
		records = append(records, domain.Record{Fields: fields, Fingerprint: fp})
	}
	return records, nil
}

// ReadFile decodes the CSV file at path.
func (c Codec) ReadFile(path string) ([]domain.Record, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the archive listing or the operator.
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrRunNotFound.WithDetails(path).WithCause(err)
		}
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	records, err := c.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", filepath.Base(path), err)
	}
	return records, nil
}
