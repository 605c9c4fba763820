package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/scrapedelta/internal/core/domain"
)

// DirName is the index directory inside the output directory.
const DirName = ".index"

const (
	runPrefix        = "run/"
	defaultGCRatio   = 0.5
	lockErrorMessage = "Cannot acquire directory lock"
)

// Config configures the index.
type Config struct {
	Dir string
	// InMemory opens a throwaway index, for tests and dry runs.
	InMemory   bool
	SyncWrites bool
}

// RunRecord is the catalog entry of one run.
type RunRecord struct {
	RunID       domain.RunID    `json:"run_id"`
	TraceID     string          `json:"trace_id"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	State       domain.RunState `json:"state"`
	FailedStage domain.RunState `json:"failed_stage,omitempty"`
	Error       string          `json:"error,omitempty"`
	Records     int             `json:"records"`
	Added       int             `json:"added"`
	Removed     int             `json:"removed"`
	Digest      uint64          `json:"digest"`
	Bootstrap   bool            `json:"bootstrap,omitempty"`
	EmptyFetch  bool            `json:"empty_fetch,omitempty"`
	Artifacts   []string        `json:"artifacts,omitempty"`
	Exported    int             `json:"exported"`
	ExportFails int             `json:"export_failures,omitempty"`
}

// Duration returns the wall time of the run.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the run reached DONE.
func (r *RunRecord) Succeeded() bool {
	return r.State == domain.StateDone
}

// Index is the Badger-backed run catalog.
type Index struct {
	db     *badger.DB
	logger *slog.Logger

	metricsRuns      prometheus.Gauge
	metricsLSMSize   prometheus.Gauge
	metricsValueSize prometheus.Gauge
}

// Open opens the index and takes the archive lock.
func Open(cfg Config, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, domain.ErrConfig.WithDetails("index: dir is required")
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.
		WithLogger(&badgerLogger{logger: logger}).
		WithSyncWrites(cfg.SyncWrites).
		// Run records are small and few.
		WithMemTableSize(8 << 20).
		WithValueLogFileSize(16 << 20).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		if isLockError(err) {
			return nil, domain.ErrArchiveLocked.WithDetails(cfg.Dir).WithCause(err)
		}
		return nil, domain.ErrPersist.WithDetails("index: open").WithCause(err)
	}

	logger.Debug("run index opened", "dir", cfg.Dir, "in_memory", cfg.InMemory)
	return &Index{db: db, logger: logger}, nil
}

func isLockError(err error) bool {
	return err != nil && strings.Contains(err.Error(), lockErrorMessage)
}

func runKey(id domain.RunID) []byte {
	return []byte(runPrefix + string(id))
}

// Put stores rec, replacing any record with the same run id.
func (ix *Index) Put(ctx context.Context, rec *RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.RunID == "" {
		return fmt.Errorf("index: run id is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("index: marshal run: %w", err)
	}
	if err := ix.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(rec.RunID), data)
	}); err != nil {
		return domain.ErrPersist.WithDetails("index: put run").WithCause(err)
	}
	ix.refreshMetrics()
	return nil
}

// Get returns the record of run id.
func (ix *Index) Get(ctx context.Context, id domain.RunID) (*RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec RunRecord
	err := ix.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrRunNotFound.WithDetails(string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("index: get run: %w", err)
	}
	return &rec, nil
}

// List returns run records oldest first. limit > 0 keeps only the newest
// limit records.
func (ix *Index) List(ctx context.Context, limit int) ([]*RunRecord, error) {
	var out []*RunRecord
	err := ix.scan(ctx, true, func(rec *RunRecord) bool {
		out = append(out, rec)
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	// Collected newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LastSuccess returns the newest run that reached DONE.
func (ix *Index) LastSuccess(ctx context.Context) (*RunRecord, error) {
	var found *RunRecord
	err := ix.scan(ctx, true, func(rec *RunRecord) bool {
		if rec.Succeeded() {
			found = rec
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, domain.ErrRunNotFound.WithDetails("no successful run")
	}
	return found, nil
}

// Delete removes the given runs. Unknown ids are ignored.
func (ix *Index) Delete(ctx context.Context, ids ...domain.RunID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := ix.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete(runKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.ErrPersist.WithDetails("index: delete runs").WithCause(err)
	}
	ix.refreshMetrics()
	return nil
}

func (ix *Index) scan(ctx context.Context, reverse bool, fn func(*RunRecord) bool) error {
	err := ix.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := []byte(runPrefix)
		if reverse {
			seek = append([]byte(runPrefix), 0xFF)
		}
		for it.Seek(seek); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec RunRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if !fn(&rec) {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index: scan: %w", err)
	}
	return nil
}

// Count returns the number of indexed runs.
func (ix *Index) Count() int {
	n := 0
	_ = ix.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}

// GC reclaims value log space. Returns the number of rewritten files.
func (ix *Index) GC() (int, error) {
	rewritten := 0
	for {
		err := ix.db.RunValueLogGC(defaultGCRatio)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
				return rewritten, nil
			}
			return rewritten, fmt.Errorf("index: gc: %w", err)
		}
		rewritten++
	}
}

// Close releases the database and its directory lock.
func (ix *Index) Close() error {
	if err := ix.db.Close(); err != nil {
		return fmt.Errorf("index: close: %w", err)
	}
	return nil
}

// RegisterMetrics registers index gauges with registry.
// Returns the index for method chaining.
func (ix *Index) RegisterMetrics(registry prometheus.Registerer) *Index {
	ix.metricsRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scrapedelta",
		Subsystem: "index",
		Name:      "runs",
		Help:      "Number of runs recorded in the run index",
	})
	ix.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scrapedelta",
		Subsystem: "index",
		Name:      "lsm_size_bytes",
		Help:      "Run index LSM tree size in bytes",
	})
	ix.metricsValueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scrapedelta",
		Subsystem: "index",
		Name:      "value_log_size_bytes",
		Help:      "Run index value log size in bytes",
	})

	registry.MustRegister(ix.metricsRuns, ix.metricsLSMSize, ix.metricsValueSize)
	ix.refreshMetrics()
	return ix
}

func (ix *Index) refreshMetrics() {
	if ix.metricsRuns == nil {
		return
	}
	lsm, vlog := ix.db.Size()
	ix.metricsRuns.Set(float64(ix.Count()))
	ix.metricsLSMSize.Set(float64(lsm))
	ix.metricsValueSize.Set(float64(vlog))
}

// badgerLogger adapts slog.Logger to Badger's Logger interface. Badger is
// chatty at info level, so its info lines are logged at debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
