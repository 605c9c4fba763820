package benchmark

import (
	"fmt"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/pkg/fingerprint"
)

// RecordCounts defines the snapshot sizes for benchmarking.
var RecordCounts = []int{1000, 10000, 50000, 100000}

// SmallRecordCounts for quick benchmarks.
var SmallRecordCounts = []int{100, 1000, 10000}

// rows generates count product rows starting at offset.
func rows(offset, count int) []map[string]string {
	out := make([]map[string]string, count)
	for i := range out {
		n := offset + i
		out[i] = map[string]string{
			"name":  fmt.Sprintf("Product %06d", n),
			"price": strconv.Itoa(100 + n%997),
		}
	}
	return out
}

// snapshotOf builds a snapshot of count rows starting at offset.
func snapshotOf(offset, count int) *domain.Snapshot {
	return domain.NewSnapshot(rows(offset, count), fingerprint.DefaultKeys, time.Now())
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithRecordCounts runs a benchmark function with various record counts.
func runWithRecordCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("records_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
