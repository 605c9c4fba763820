package domain

import (
	"maps"
	"time"

	"github.com/yndnr/scrapedelta/pkg/fingerprint"
)

// Record is one scraped row and its content fingerprint.
//
// Records are values: Fields is copied on construction and must not be
// mutated afterwards.
type Record struct {
	Fields      map[string]string
	Fingerprint fingerprint.Fingerprint
}

// NewRecord copies fields and fingerprints them over keys.
func NewRecord(fields map[string]string, keys []string) Record {
	cp := make(map[string]string, len(fields))
	maps.Copy(cp, fields)
	return Record{
		Fields:      cp,
		Fingerprint: fingerprint.Hash(cp, keys),
	}
}

// Get returns the named field, or "" when absent.
func (r Record) Get(name string) string {
	return r.Fields[name]
}

// Snapshot is the ordered record set produced by one run.
type Snapshot struct {
	Records []Record
	TakenAt time.Time
}

// NewSnapshot builds a snapshot from raw fetcher rows.
func NewSnapshot(rows []map[string]string, keys []string, takenAt time.Time) *Snapshot {
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, NewRecord(row, keys))
	}
	return &Snapshot{Records: records, TakenAt: takenAt}
}

// Len returns the record count. A nil snapshot is empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// IsEmpty reports whether the snapshot has no records.
func (s *Snapshot) IsEmpty() bool {
	return s.Len() == 0
}

// FingerprintSet returns the distinct fingerprints in the snapshot.
func (s *Snapshot) FingerprintSet() map[fingerprint.Fingerprint]struct{} {
	set := make(map[fingerprint.Fingerprint]struct{}, s.Len())
	if s == nil {
		return set
	}
	for _, r := range s.Records {
		set[r.Fingerprint] = struct{}{}
	}
	return set
}

// Delta is the change set between two snapshots. It is derived data and is
// recomputed on every run.
type Delta struct {
	Added      []Record
	Removed    []Record
	ComputedAt time.Time
}

// IsEmpty reports whether nothing was added or removed.
func (d *Delta) IsEmpty() bool {
	return d == nil || (len(d.Added) == 0 && len(d.Removed) == 0)
}
