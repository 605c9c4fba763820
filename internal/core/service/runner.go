package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yndnr/scrapedelta/internal/core/delta"
	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/export"
	"github.com/yndnr/scrapedelta/internal/storage/index"
	"github.com/yndnr/scrapedelta/internal/storage/snapshot"
	"github.com/yndnr/scrapedelta/internal/telemetry/logger"
	"github.com/yndnr/scrapedelta/internal/telemetry/metric"
)

// Fetcher retrieves the records of one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]map[string]string, error)
}

// SnapshotStore is the local archive used by a run.
type SnapshotStore interface {
	LoadLatest() (*domain.Snapshot, bool, error)
	Archive(snap *domain.Snapshot, runID domain.RunID) (*snapshot.Handle, error)
	ArchiveDelta(d *domain.Delta, runID domain.RunID) (added, removed *snapshot.Handle, err error)
	SaveLatest(snap *domain.Snapshot) error
	Discard(handles ...*snapshot.Handle) error
	LatestPath() string
}

// RunIndex records the outcome of every run.
type RunIndex interface {
	Put(ctx context.Context, rec *index.RunRecord) error
}

// RunnerConfig holds the per-target settings of a Runner.
type RunnerConfig struct {
	// URLs are fetched in order into one snapshot.
	URLs []string
	// HashFields are the fingerprinted fields, in order.
	HashFields []string
	// ExportConcurrency bounds parallel uploads.
	ExportConcurrency int
}

// Result is the outcome of one run. On failure it carries whatever was known
// when the run stopped.
type Result struct {
	RunID      domain.RunID
	TraceID    string
	State      domain.RunState
	Records    int
	Added      int
	Removed    int
	Bootstrap  bool
	EmptyFetch bool
	Handles    []*snapshot.Handle
	Exports    []export.Result
	Duration   time.Duration
}

// ExportFailures counts failed exports.
func (r *Result) ExportFailures() int {
	n := 0
	for _, e := range r.Exports {
		if e.Err != nil {
			n++
		}
	}
	return n
}

// Runner executes the fetch, hash, diff, persist, export pipeline. A Runner
// is not safe for concurrent Run calls; the archive lock makes concurrent
// runs against one archive fail before they reach it.
type Runner struct {
	cfg     RunnerConfig
	fetcher Fetcher
	store   SnapshotStore
	index   RunIndex
	sink    export.Sink
	metrics *metric.Registry
	log     logger.Logger
	now     func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithIndex records every run in idx.
func WithIndex(idx RunIndex) RunnerOption {
	return func(r *Runner) { r.index = idx }
}

// WithSink exports artifacts through sink after persisting.
func WithSink(sink export.Sink) RunnerOption {
	return func(r *Runner) { r.sink = sink }
}

// WithMetrics updates m after every run.
func WithMetrics(m *metric.Registry) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig, fetcher Fetcher, store SnapshotStore, opts ...RunnerOption) *Runner {
	if cfg.ExportConcurrency < 1 {
		cfg.ExportConcurrency = 1
	}
	r := &Runner{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		sink:    export.Noop{},
		log:     logger.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run carries the state of one Run call.
type run struct {
	*Runner
	ctx   context.Context
	res   *Result
	rec   *index.RunRecord
	start time.Time
}

// Run executes one run. A fetch, hash, diff or persist failure returns a
// *domain.RunError and leaves latest.csv as it was. Export failures are
// logged and reported in the Result but do not fail the run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := r.now().UTC()
	runID := domain.NewRunID(start)
	traceID := domain.NewTraceID()

	ctx = logger.WithLogger(ctx, r.log)
	ctx = logger.WithRunID(ctx, runID.String())
	ctx = logger.WithTraceID(ctx, traceID)

	rn := &run{
		Runner: r,
		ctx:    ctx,
		start:  start,
		res:    &Result{RunID: runID, TraceID: traceID},
		rec:    &index.RunRecord{RunID: runID, TraceID: traceID, StartedAt: start},
	}
	logger.L(ctx).Info("run started", "urls", len(r.cfg.URLs))

	if err := rn.execute(); err != nil {
		return rn.res, rn.fail(err)
	}
	rn.succeed()
	return rn.res, nil
}

func (rn *run) enter(state domain.RunState) {
	rn.res.State = state
	rn.rec.State = state
	logger.L(rn.ctx).Debug("run state", "state", state)
}

func (rn *run) execute() error {
	rn.enter(domain.StateFetching)
	rows, err := rn.fetch()
	if err != nil {
		return err
	}

	rn.enter(domain.StateHashing)
	snap, err := rn.hash(rows)
	if err != nil {
		return err
	}
	rn.res.Records = snap.Len()
	rn.rec.Records = snap.Len()
	rn.rec.Digest = delta.Digest(snap)

	rn.enter(domain.StateDiffing)
	prev, found, err := rn.store.LoadLatest()
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}
	d := delta.DiffAt(snap, prev, rn.now().UTC())
	rn.res.Added, rn.res.Removed = len(d.Added), len(d.Removed)
	rn.rec.Added, rn.rec.Removed = len(d.Added), len(d.Removed)
	rn.res.Bootstrap = !found
	rn.rec.Bootstrap = !found
	rn.res.EmptyFetch = snap.IsEmpty() && !prev.IsEmpty()
	rn.rec.EmptyFetch = rn.res.EmptyFetch

	rn.enter(domain.StatePersisting)
	if err := rn.persist(snap, d); err != nil {
		return err
	}
	rn.reportChanges(snap, prev, d)

	rn.enter(domain.StateExporting)
	rn.export()
	return nil
}

func (rn *run) fetch() ([]map[string]string, error) {
	var rows []map[string]string
	for _, u := range rn.cfg.URLs {
		page, err := rn.fetcher.Fetch(rn.ctx, u)
		if err != nil {
			if !errors.Is(err, domain.ErrFetch) {
				err = domain.ErrFetch.WithDetails(u).WithCause(err)
			}
			return nil, err
		}
		logger.L(rn.ctx).Debug("page fetched", "url", u, "records", len(page))
		rows = append(rows, page...)
	}
	return rows, nil
}

// hash fingerprints rows. Fingerprinting is total, so a panic here is a bug;
// it is reported as ErrHash instead of taking the process down.
func (rn *run) hash(rows []map[string]string) (snap *domain.Snapshot, err error) {
	defer func() {
		if p := recover(); p != nil {
			snap = nil
			err = domain.ErrHash.WithDetailsf("%v", p)
		}
	}()
	return domain.NewSnapshot(rows, rn.cfg.HashFields, rn.start), nil
}

// persist writes the archive snapshot, then the delta, then latest.csv. The
// last write is the commit point; on any failure the artifacts already
// published by this run are removed so the archive matches the last
// successful run.
func (rn *run) persist(snap *domain.Snapshot, d *domain.Delta) (err error) {
	defer func() {
		if err != nil {
			rn.rollback()
		}
	}()

	h, err := rn.store.Archive(snap, rn.res.RunID)
	if err != nil {
		return err
	}
	if h.RunID != rn.res.RunID {
		logger.L(rn.ctx).Warn("run id taken, using sequence suffix", "resolved", h.RunID)
		rn.res.RunID = h.RunID
		rn.rec.RunID = h.RunID
		rn.ctx = logger.WithRunID(rn.ctx, h.RunID.String())
	}
	rn.addHandle(h)

	added, removed, err := rn.store.ArchiveDelta(d, h.RunID)
	rn.addHandle(added)
	rn.addHandle(removed)
	if err != nil {
		return err
	}

	return rn.store.SaveLatest(snap)
}

func (rn *run) rollback() {
	if len(rn.res.Handles) == 0 {
		return
	}
	log := logger.L(rn.ctx)
	if err := rn.store.Discard(rn.res.Handles...); err != nil {
		log.Error("remove uncommitted artifacts", "error", err)
	} else {
		log.Warn("uncommitted artifacts removed", "artifacts", rn.rec.Artifacts)
	}
	rn.res.Handles = nil
	rn.rec.Artifacts = nil
}

func (rn *run) addHandle(h *snapshot.Handle) {
	if h == nil {
		return
	}
	rn.res.Handles = append(rn.res.Handles, h)
	rn.rec.Artifacts = append(rn.rec.Artifacts, h.Name())
}

func (rn *run) reportChanges(snap, prev *domain.Snapshot, d *domain.Delta) {
	log := logger.L(rn.ctx)
	if rn.res.EmptyFetch {
		log.Error("all records removed, extraction selector likely broken",
			"previous", prev.Len())
		if rn.metrics != nil {
			rn.metrics.EmptyFetchTotal.Inc()
		}
	}

	st := delta.Summarize(snap, d)
	if d.IsEmpty() {
		log.Info("no changes detected", "records", snap.Len())
		return
	}
	args := []any{"added", st.Added, "removed", st.Removed, "unchanged", st.Unchanged}
	if rn.res.Bootstrap {
		log.Debug("changes detected", append(args, "bootstrap", true)...)
		return
	}
	log.Info("changes detected", args...)
}

func (rn *run) export() {
	arts := make([]export.Artifact, 0, len(rn.res.Handles)+1)
	for _, h := range rn.res.Handles {
		arts = append(arts, export.Artifact{Path: h.Path, LogicalName: snapshot.ArchiveDir + "/" + h.Name()})
	}
	arts = append(arts, export.Artifact{Path: rn.store.LatestPath(), LogicalName: snapshot.LatestFile})

	results, _ := export.ExportAll(rn.ctx, rn.sink, arts, rn.cfg.ExportConcurrency)
	rn.res.Exports = results

	log := logger.L(rn.ctx)
	for _, r := range results {
		outcome := metric.ExportOK
		if r.Err != nil {
			outcome = metric.ExportFailed
			rn.rec.ExportFails++
			log.Error("export failed", "artifact", r.LogicalName, "error", r.Err)
		} else {
			rn.rec.Exported++
		}
		if rn.metrics != nil {
			rn.metrics.ExportsTotal.WithLabelValues(outcome).Inc()
		}
	}
}

func (rn *run) succeed() {
	finished := rn.now().UTC()
	rn.enter(domain.StateDone)
	rn.res.Duration = finished.Sub(rn.start)
	rn.rec.FinishedAt = finished
	rn.record()

	if m := rn.metrics; m != nil {
		m.RunsTotal.WithLabelValues(metric.OutcomeSuccess).Inc()
		m.Records.Set(float64(rn.res.Records))
		m.AddedTotal.Add(float64(rn.res.Added))
		m.RemovedTotal.Add(float64(rn.res.Removed))
		m.RunDuration.Observe(rn.res.Duration.Seconds())
		m.LastSuccess.Set(float64(finished.Unix()))
	}
	logger.L(rn.ctx).Info("run finished",
		"records", rn.res.Records,
		"added", rn.res.Added,
		"removed", rn.res.Removed,
		"bootstrap", rn.res.Bootstrap,
		"export_failures", rn.res.ExportFailures(),
		"duration", rn.res.Duration,
	)
}

func (rn *run) fail(err error) error {
	stage := rn.res.State
	runErr := domain.NewRunError(rn.res.RunID, stage, err)
	finished := rn.now().UTC()

	rn.enter(domain.StateFailed)
	rn.res.Duration = finished.Sub(rn.start)
	rn.rec.FailedStage = stage
	rn.rec.Error = err.Error()
	rn.rec.FinishedAt = finished
	rn.record()

	if m := rn.metrics; m != nil {
		m.RunsTotal.WithLabelValues(metric.OutcomeFailed).Inc()
		m.RunDuration.Observe(rn.res.Duration.Seconds())
	}
	logger.L(rn.ctx).Error("run failed", "stage", stage, "error", err)
	return runErr
}

// record writes the run to the index. The index is a catalog, not the
// archive, so a write failure is logged and the run outcome stands.
func (rn *run) record() {
	if rn.index == nil {
		return
	}
	if err := rn.index.Put(context.WithoutCancel(rn.ctx), rn.rec); err != nil {
		logger.L(rn.ctx).Warn("run index write failed", "error", err)
	}
}
