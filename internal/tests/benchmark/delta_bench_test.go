package benchmark

import (
	"testing"

	"github.com/yndnr/scrapedelta/internal/core/delta"
	"github.com/yndnr/scrapedelta/pkg/fingerprint"
)

// BenchmarkFingerprint benchmarks hashing a single record.
func BenchmarkFingerprint(b *testing.B) {
	row := map[string]string{"name": "  Desk Lamp  ", "price": "19.99"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = fingerprint.Hash(row, fingerprint.DefaultKeys)
	}
}

// BenchmarkSnapshotBuild benchmarks fingerprinting a whole page of rows.
func BenchmarkSnapshotBuild(b *testing.B) {
	runWithRecordCounts(b, SmallRecordCounts, func(b *testing.B, count int) {
		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = snapshotOf(0, count)
		}
	})
}

// BenchmarkDiff benchmarks diffing two snapshots that overlap by 90%.
func BenchmarkDiff(b *testing.B) {
	runWithRecordCounts(b, RecordCounts, func(b *testing.B, count int) {
		prev := snapshotOf(0, count)
		next := snapshotOf(count/10, count)

		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			d := delta.Diff(next, prev)
			if len(d.Added) != count/10 {
				b.Fatalf("added = %d", len(d.Added))
			}
		}
		b.StopTimer()
		reportMemory(b, "mem")
	})
}

// BenchmarkDigest benchmarks the snapshot digest used for change detection.
func BenchmarkDigest(b *testing.B) {
	runWithRecordCounts(b, RecordCounts, func(b *testing.B, count int) {
		snap := snapshotOf(0, count)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = delta.Digest(snap)
		}
	})
}
