package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/storage/index"
	"github.com/yndnr/scrapedelta/internal/storage/snapshot"
	"github.com/yndnr/scrapedelta/internal/telemetry/logger"
	"github.com/yndnr/scrapedelta/internal/telemetry/metric"
)

var hashFields = []string{"name", "price"}

// scriptFetcher returns one scripted page per call.
type scriptFetcher struct {
	pages [][]map[string]string
	err   error
	calls int
}

func (f *scriptFetcher) Fetch(_ context.Context, _ string) ([]map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := f.pages[f.calls%len(f.pages)]
	f.calls++
	return page, nil
}

// stepClock advances an hour per call to Run.
type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time { return c.t }

type recordingSink struct {
	mu    sync.Mutex
	names []string
	fail  bool
}

func (s *recordingSink) Export(_ context.Context, path, name string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	if s.fail {
		return domain.ErrExport.WithDetails("quota")
	}
	return nil
}

type memIndex struct {
	recs []*index.RunRecord
	err  error
}

func (m *memIndex) Put(_ context.Context, rec *index.RunRecord) error {
	if m.err != nil {
		return m.err
	}
	cp := *rec
	m.recs = append(m.recs, &cp)
	return nil
}

type harness struct {
	dir     string
	store   *snapshot.Store
	fetcher *scriptFetcher
	sink    *recordingSink
	index   *memIndex
	metrics *metric.Registry
	logs    *bytes.Buffer
	clock   *stepClock
	runner  *Runner
}

func newHarness(t *testing.T, pages ...[]map[string]string) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := snapshot.NewStore(snapshot.Config{Dir: dir, Fields: hashFields, HashFields: hashFields})
	if err != nil {
		t.Fatal(err)
	}
	var logs bytes.Buffer
	log, err := logger.New(logger.Config{Level: "debug", Format: "json", Output: &logs})
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		dir:     dir,
		store:   store,
		fetcher: &scriptFetcher{pages: pages},
		sink:    &recordingSink{},
		index:   &memIndex{},
		metrics: metric.NewRegistry(false),
		logs:    &logs,
		clock:   &stepClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.runner = NewRunner(RunnerConfig{URLs: []string{"https://shop.example/"}, HashFields: hashFields, ExportConcurrency: 2},
		h.fetcher, store,
		WithIndex(h.index),
		WithSink(h.sink),
		WithMetrics(h.metrics),
		WithLogger(log),
		WithClock(h.clock.now),
	)
	return h
}

func (h *harness) run(t *testing.T) (*Result, error) {
	t.Helper()
	res, err := h.runner.Run(context.Background())
	h.clock.t = h.clock.t.Add(time.Hour)
	return res, err
}

func (h *harness) archived(t *testing.T) []string {
	t.Helper()
	des, err := os.ReadDir(filepath.Join(h.dir, snapshot.ArchiveDir))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, de := range des {
		names = append(names, de.Name())
	}
	return names
}

// logLines returns the log lines containing msg.
func (h *harness) logLines(msg string) []string {
	var out []string
	for _, line := range strings.Split(h.logs.String(), "\n") {
		if strings.Contains(line, `"msg":"`+msg+`"`) {
			out = append(out, line)
		}
	}
	return out
}

func row(name, price string) map[string]string {
	return map[string]string{"name": name, "price": price}
}

func TestRunner_ThreeRuns(t *testing.T) {
	h := newHarness(t,
		[]map[string]string{row("A", "10")},
		[]map[string]string{row("A", "12")},
		[]map[string]string{row("A", "12")},
	)

	// Run 1: bootstrap.
	res, err := h.run(t)
	if err != nil {
		t.Fatalf("run 1: %v", err)
	}
	if !res.Bootstrap || res.Added != 1 || res.Removed != 0 || res.State != domain.StateDone {
		t.Errorf("run 1 result = %+v", res)
	}
	if got := strings.Join(h.archived(t), ","); got != "added_20260101_120000.csv,snapshot_20260101_120000.csv" {
		t.Errorf("run 1 archive = %s", got)
	}
	if lines := h.logLines("changes detected"); len(lines) != 1 || !strings.Contains(lines[0], `"level":"DEBUG"`) {
		t.Errorf("bootstrap changes line = %v", lines)
	}

	// Run 2: price change is one removal plus one addition.
	h.logs.Reset()
	res, err = h.run(t)
	if err != nil {
		t.Fatalf("run 2: %v", err)
	}
	if res.Bootstrap || res.Added != 1 || res.Removed != 1 {
		t.Errorf("run 2 result = %+v", res)
	}
	added, err := h.store.ReadArtifact(filepath.Join(h.dir, snapshot.ArchiveDir, "added_20260101_130000.csv"))
	if err != nil || len(added) != 1 || added[0].Get("price") != "12" {
		t.Errorf("run 2 added = %v, %v", added, err)
	}
	removed, err := h.store.ReadArtifact(filepath.Join(h.dir, snapshot.ArchiveDir, "removed_20260101_130000.csv"))
	if err != nil || len(removed) != 1 || removed[0].Get("price") != "10" {
		t.Errorf("run 2 removed = %v, %v", removed, err)
	}
	if lines := h.logLines("changes detected"); len(lines) != 1 || !strings.Contains(lines[0], `"level":"INFO"`) {
		t.Errorf("run 2 changes line = %v", lines)
	}

	// Run 3: nothing changed, no delta files.
	h.logs.Reset()
	res, err = h.run(t)
	if err != nil {
		t.Fatalf("run 3: %v", err)
	}
	if res.Added != 0 || res.Removed != 0 {
		t.Errorf("run 3 result = %+v", res)
	}
	if len(h.logLines("no changes detected")) != 1 {
		t.Errorf("run 3 missing no-changes line: %s", h.logs.String())
	}
	for _, n := range h.archived(t) {
		if strings.HasSuffix(n, "20260101_140000.csv") && !strings.HasPrefix(n, "snapshot_") {
			t.Errorf("run 3 wrote delta file %s", n)
		}
	}

	if len(h.index.recs) != 3 || !h.index.recs[2].Succeeded() {
		t.Errorf("index records = %d", len(h.index.recs))
	}
	if got := testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues(metric.OutcomeSuccess)); got != 3 {
		t.Errorf("runs_total{success} = %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.AddedTotal); got != 2 {
		t.Errorf("added_total = %v", got)
	}
}

func TestRunner_LogsCarryRunIDs(t *testing.T) {
	h := newHarness(t, []map[string]string{row("A", "10")})
	res, err := h.run(t)
	if err != nil {
		t.Fatal(err)
	}
	lines := h.logLines("run finished")
	if len(lines) != 1 {
		t.Fatalf("run finished lines = %v", lines)
	}
	if !strings.Contains(lines[0], `"run_id":"20260101_120000"`) || !strings.Contains(lines[0], `"trace_id":"`+res.TraceID+`"`) {
		t.Errorf("line = %s", lines[0])
	}
}

func TestRunner_FetchFailure(t *testing.T) {
	h := newHarness(t, []map[string]string{row("A", "10")})
	if _, err := h.run(t); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(h.store.LatestPath())
	if err != nil {
		t.Fatal(err)
	}

	h.fetcher.err = errors.New("connection refused")
	res, err := h.run(t)
	if !errors.Is(err, domain.ErrFetch) {
		t.Fatalf("Run() error = %v, want ErrFetch", err)
	}
	if stage, ok := domain.FailedStage(err); !ok || stage != domain.StateFetching {
		t.Errorf("FailedStage() = %v, %v", stage, ok)
	}
	if res.State != domain.StateFailed {
		t.Errorf("State = %v", res.State)
	}
	after, _ := os.ReadFile(h.store.LatestPath())
	if !bytes.Equal(before, after) {
		t.Error("latest.csv changed after a failed fetch")
	}
	if len(h.archived(t)) != 2 {
		t.Errorf("archive = %v", h.archived(t))
	}

	last := h.index.recs[len(h.index.recs)-1]
	if last.State != domain.StateFailed || last.FailedStage != domain.StateFetching || last.Error == "" {
		t.Errorf("index record = %+v", last)
	}
	if got := testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues(metric.OutcomeFailed)); got != 1 {
		t.Errorf("runs_total{failed} = %v", got)
	}
}

// commitFailingStore fails the latest.csv commit.
type commitFailingStore struct {
	*snapshot.Store
}

func (commitFailingStore) SaveLatest(*domain.Snapshot) error {
	return domain.ErrPersist.WithDetails("disk full")
}

func TestRunner_PersistFailureSkipsExport(t *testing.T) {
	h := newHarness(t,
		[]map[string]string{row("A", "10")},
		[]map[string]string{row("B", "20")},
	)
	if _, err := h.run(t); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(h.store.LatestPath())
	if err != nil {
		t.Fatal(err)
	}
	archiveBefore := strings.Join(h.archived(t), ",")
	h.sink.names = nil
	h.runner.store = commitFailingStore{h.store}

	_, err = h.run(t)
	if !errors.Is(err, domain.ErrPersist) {
		t.Fatalf("Run() error = %v, want ErrPersist", err)
	}
	if stage, _ := domain.FailedStage(err); stage != domain.StatePersisting {
		t.Errorf("FailedStage() = %v", stage)
	}
	after, _ := os.ReadFile(h.store.LatestPath())
	if !bytes.Equal(before, after) {
		t.Error("latest.csv promoted despite failed commit")
	}
	if len(h.sink.names) != 0 {
		t.Errorf("exported after persist failure: %v", h.sink.names)
	}
	if got := strings.Join(h.archived(t), ","); got != archiveBefore {
		t.Errorf("archive after failed run = %s, want %s", got, archiveBefore)
	}
	if rec := h.index.recs[len(h.index.recs)-1]; len(rec.Artifacts) != 0 {
		t.Errorf("failed run indexed artifacts %v", rec.Artifacts)
	}
}

// deltaFailingStore fails after the snapshot has been archived.
type deltaFailingStore struct {
	*snapshot.Store
}

func (deltaFailingStore) ArchiveDelta(*domain.Delta, domain.RunID) (*snapshot.Handle, *snapshot.Handle, error) {
	return nil, nil, domain.ErrPersist.WithDetails("read-only file system")
}

func TestRunner_FailedFirstRunLeavesNoBaseline(t *testing.T) {
	tests := []struct {
		name  string
		store func(*snapshot.Store) SnapshotStore
	}{
		{"commit fails", func(s *snapshot.Store) SnapshotStore { return commitFailingStore{s} }},
		{"delta fails", func(s *snapshot.Store) SnapshotStore { return deltaFailingStore{s} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t,
				[]map[string]string{row("A", "10")},
				[]map[string]string{row("B", "20")},
			)
			h.runner.store = tt.store(h.store)
			res, err := h.run(t)
			if !errors.Is(err, domain.ErrPersist) {
				t.Fatalf("first Run() error = %v, want ErrPersist", err)
			}
			if len(res.Handles) != 0 {
				t.Errorf("failed run reports handles %v", res.Handles)
			}
			if got := h.archived(t); len(got) != 0 {
				t.Fatalf("archive after failed first run = %v, want empty", got)
			}

			h.runner.store = h.store
			res, err = h.run(t)
			if err != nil {
				t.Fatalf("second Run() error = %v", err)
			}
			if !res.Bootstrap || res.Added != 1 || res.Removed != 0 {
				t.Errorf("second run bootstrap=%v added=%d removed=%d, want true 1 0",
					res.Bootstrap, res.Added, res.Removed)
			}
		})
	}
}

func TestRunner_ExportFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, []map[string]string{row("A", "10"), row("B", "20")})
	h.sink.fail = true

	res, err := h.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// snapshot, added and latest.
	if len(res.Exports) != 3 || res.ExportFailures() != 3 {
		t.Errorf("exports = %+v", res.Exports)
	}
	want := map[string]bool{
		"archive/snapshot_20260101_120000.csv": true,
		"archive/added_20260101_120000.csv":    true,
		"latest.csv":                           true,
	}
	for _, n := range h.sink.names {
		if !want[n] {
			t.Errorf("unexpected export %q", n)
		}
	}
	if got := testutil.ToFloat64(h.metrics.ExportsTotal.WithLabelValues(metric.ExportFailed)); got != 3 {
		t.Errorf("exports_total{failed} = %v", got)
	}
	if h.index.recs[0].ExportFails != 3 || !h.index.recs[0].Succeeded() {
		t.Errorf("index record = %+v", h.index.recs[0])
	}
}

func TestRunner_EmptyFetch(t *testing.T) {
	h := newHarness(t,
		[]map[string]string{row("A", "10"), row("B", "20")},
		[]map[string]string{},
	)
	if _, err := h.run(t); err != nil {
		t.Fatal(err)
	}
	h.logs.Reset()

	res, err := h.run(t)
	if err != nil {
		t.Fatalf("empty fetch should not fail the run: %v", err)
	}
	if !res.EmptyFetch || res.Removed != 2 {
		t.Errorf("result = %+v", res)
	}
	lines := h.logLines("all records removed, extraction selector likely broken")
	if len(lines) != 1 || !strings.Contains(lines[0], `"level":"ERROR"`) {
		t.Errorf("empty fetch line = %v", lines)
	}
	if got := testutil.ToFloat64(h.metrics.EmptyFetchTotal); got != 1 {
		t.Errorf("empty_fetch_total = %v", got)
	}
}

func TestRunner_RunIDCollision(t *testing.T) {
	h := newHarness(t,
		[]map[string]string{row("A", "10")},
		[]map[string]string{row("B", "10")},
	)
	if _, err := h.runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Same clock second.
	res, err := h.runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID != "20260101_120000-0002" {
		t.Errorf("RunID = %s", res.RunID)
	}
	if h.index.recs[1].RunID != res.RunID {
		t.Errorf("index run id = %s", h.index.recs[1].RunID)
	}
}

func TestRunner_IndexFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, []map[string]string{row("A", "10")})
	h.index.err = domain.ErrPersist.WithDetails("disk full")
	if _, err := h.run(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.logLines("run index write failed")) != 1 {
		t.Error("index failure not logged")
	}
}

func TestRunner_EmptyFirstRun(t *testing.T) {
	h := newHarness(t, []map[string]string{})
	res, err := h.run(t)
	if err != nil {
		t.Fatal(err)
	}
	if res.EmptyFetch || res.Added != 0 || !res.Bootstrap {
		t.Errorf("result = %+v", res)
	}
	if got := strings.Join(h.archived(t), ","); got != "snapshot_20260101_120000.csv" {
		t.Errorf("archive = %s", got)
	}
}
