package delta

import (
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/pkg/fingerprint"
)

// Diff returns the records of next absent from prev (Added) and the records of
// prev absent from next (Removed). Either snapshot may be nil.
func Diff(next, prev *domain.Snapshot) *domain.Delta {
	return DiffAt(next, prev, time.Now())
}

// DiffAt is Diff with an explicit computation time.
func DiffAt(next, prev *domain.Snapshot, at time.Time) *domain.Delta {
	return &domain.Delta{
		Added:      subtract(next, prev.FingerprintSet()),
		Removed:    subtract(prev, next.FingerprintSet()),
		ComputedAt: at,
	}
}

// Unchanged returns the records of next whose fingerprint also appears in prev.
func Unchanged(next, prev *domain.Snapshot) []domain.Record {
	if next.IsEmpty() {
		return nil
	}
	seen := prev.FingerprintSet()
	var out []domain.Record
	for _, r := range next.Records {
		if _, ok := seen[r.Fingerprint]; ok {
			out = append(out, r)
		}
	}
	return out
}

func subtract(s *domain.Snapshot, exclude map[fingerprint.Fingerprint]struct{}) []domain.Record {
	if s.IsEmpty() {
		return nil
	}
	var out []domain.Record
	for _, r := range s.Records {
		if _, ok := exclude[r.Fingerprint]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// Digest folds the distinct fingerprints of s into an order-independent
// 64-bit value. Snapshots with equal fingerprint sets have equal digests.
// The empty snapshot digests to 0.
func Digest(s *domain.Snapshot) uint64 {
	var sum uint64
	for fp := range s.FingerprintSet() {
		sum += murmur3.Sum64(fp[:])
	}
	return sum
}

// Stats summarizes a delta for logging and the run index.
type Stats struct {
	Added     int
	Removed   int
	Unchanged int
}

// Summarize counts a delta against the snapshot it was computed for.
func Summarize(next *domain.Snapshot, d *domain.Delta) Stats {
	st := Stats{}
	if d != nil {
		st.Added = len(d.Added)
		st.Removed = len(d.Removed)
	}
	st.Unchanged = next.Len() - st.Added
	return st
}
