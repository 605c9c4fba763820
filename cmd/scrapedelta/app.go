package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yndnr/scrapedelta/internal/config"
	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/core/service"
	"github.com/yndnr/scrapedelta/internal/export"
	"github.com/yndnr/scrapedelta/internal/fetcher"
	"github.com/yndnr/scrapedelta/internal/infra/buildinfo"
	"github.com/yndnr/scrapedelta/internal/storage/index"
	"github.com/yndnr/scrapedelta/internal/storage/snapshot"
	"github.com/yndnr/scrapedelta/internal/telemetry/logger"
	"github.com/yndnr/scrapedelta/internal/telemetry/metric"
)

const sinkSetupTimeout = 30 * time.Second

// app owns every long-lived component of the process.
type app struct {
	opts    options
	log     logger.Logger
	runLog  *os.File
	metrics *metric.Registry
	index   *index.Index

	mu      sync.Mutex
	cfg     *config.Config
	store   *snapshot.Store
	fetcher fetcher.Fetcher
	runner  *service.Runner
}

func newApp(cfg *config.Config, opts options, stderr io.Writer) (*app, error) {
	a := &app{opts: opts, cfg: cfg}

	if err := a.initLogger(stderr); err != nil {
		return nil, err
	}
	a.log.Info("starting scrapedelta",
		"version", buildinfo.Get().Version,
		"commit", buildinfo.Get().Commit,
		"config_file", opts.configFile,
		"watch", opts.watch,
		"config", config.Sanitize(cfg),
	)

	a.metrics = metric.NewRegistry(opts.watch)

	ix, err := index.Open(index.Config{
		Dir:        filepath.Join(cfg.Storage.OutputDir, index.DirName),
		SyncWrites: true,
	}, a.log.Slog())
	if err != nil {
		if errors.Is(err, domain.ErrArchiveLocked) {
			a.log.Error("archive locked by another run", "output_dir", cfg.Storage.OutputDir, "error", err)
			a.metrics.RunsTotal.WithLabelValues(metric.OutcomeLocked).Inc()
			a.writeTextfile()
		} else {
			a.log.Error("open run index", "error", err)
		}
		a.closeRunLog()
		return nil, err
	}
	a.index = ix.RegisterMetrics(a.metrics.Registerer())

	if err := a.build(cfg); err != nil {
		a.log.Error("startup failed", "error", err)
		a.Close()
		return nil, err
	}

	a.metrics.Registerer().MustRegister(metric.NewCollector(a.archiveStats))
	return a, nil
}

func (a *app) initLogger(stderr io.Writer) error {
	cfg := logger.Config{
		Level:  a.cfg.Log.Level,
		Format: a.cfg.Log.Format,
		Output: stderr,
	}
	if a.cfg.Log.File {
		f, err := logger.OpenRunLog(a.cfg.Storage.OutputDir)
		if err != nil {
			return domain.ErrConfig.WithCause(err)
		}
		a.runLog = f
		cfg.RunLog = f
	}
	l, err := logger.New(cfg)
	if err != nil {
		a.closeRunLog()
		return domain.ErrConfig.WithCause(err)
	}
	logger.SetDefault(l)
	a.log = l
	return nil
}

// build creates the store, fetcher, sink and runner for cfg and swaps them in.
func (a *app) build(cfg *config.Config) error {
	store, err := snapshot.NewStore(snapshot.Config{
		Dir:               cfg.Storage.OutputDir,
		Fields:            cfg.Target.FieldNames(),
		HashFields:        cfg.Target.HashFields,
		FingerprintColumn: cfg.Storage.FingerprintColumn,
		Logger:            a.log.Slog(),
	})
	if err != nil {
		return err
	}

	f, err := fetcher.New(cfg.Target, a.log.Slog())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkSetupTimeout)
	defer cancel()
	sink, err := export.New(ctx, cfg.Export, a.log.Slog())
	if err != nil {
		f.Close()
		return err
	}

	runner := service.NewRunner(service.RunnerConfig{
		URLs:              cfg.Target.AllURLs(),
		HashFields:        cfg.Target.HashFields,
		ExportConcurrency: cfg.Export.Concurrency,
	}, f, store,
		service.WithIndex(a.index),
		service.WithSink(sink),
		service.WithMetrics(a.metrics),
		service.WithLogger(a.log),
	)

	a.mu.Lock()
	old := a.fetcher
	a.cfg, a.store, a.fetcher, a.runner = cfg, store, f, runner
	a.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			a.log.Warn("close previous fetcher", "error", err)
		}
	}
	return nil
}

// reload applies cfg between runs. The output directory is bound to the
// archive lock and cannot change without a restart.
func (a *app) reload(cfg *config.Config) {
	a.mu.Lock()
	current := a.cfg
	a.mu.Unlock()

	if cfg.Storage.OutputDir != current.Storage.OutputDir {
		a.log.Warn("storage.output_dir change ignored until restart",
			"current", current.Storage.OutputDir, "configured", cfg.Storage.OutputDir)
		cfg.Storage.OutputDir = current.Storage.OutputDir
	}
	if err := a.build(cfg); err != nil {
		a.log.Error("config reload failed, keeping previous configuration", "error", err)
		return
	}
	logger.SetLevel(cfg.Log.Level)
	a.log.Info("configuration reloaded", "config", config.Sanitize(cfg))
}

func (a *app) config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// runOnce executes one run with the current runner.
func (a *app) runOnce(ctx context.Context) (*service.Result, error) {
	a.mu.Lock()
	runner := a.runner
	a.mu.Unlock()

	res, err := runner.Run(ctx)
	a.writeTextfile()
	return res, err
}

func (a *app) once(ctx context.Context) int {
	res, err := a.runOnce(ctx)
	if err != nil {
		return exitFatal
	}
	if n := res.ExportFailures(); n > 0 {
		a.log.Warn("run succeeded with export failures", "run_id", res.RunID, "failures", n)
	}
	return exitOK
}

func (a *app) archiveStats() (metric.ArchiveStats, error) {
	a.mu.Lock()
	store := a.store
	a.mu.Unlock()

	st, err := store.Stats()
	if err != nil {
		return metric.ArchiveStats{}, err
	}
	return metric.ArchiveStats{Runs: st.Runs, Artifacts: st.Artifacts, Bytes: st.Bytes}, nil
}

func (a *app) writeTextfile() {
	path := a.config().Metrics.Textfile
	if path == "" {
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		a.log.Warn("write metrics textfile", "path", path, "error", err)
	}
}

func (a *app) closeRunLog() {
	if a.runLog != nil {
		_ = a.runLog.Close()
		a.runLog = nil
	}
}

// Close releases the archive lock and every open resource.
func (a *app) Close() error {
	var errs []error
	a.mu.Lock()
	f := a.fetcher
	a.fetcher = nil
	a.mu.Unlock()
	if f != nil {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close fetcher: %w", err))
		}
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			errs = append(errs, err)
		}
		a.index = nil
	}
	a.closeRunLog()
	return errors.Join(errs...)
}
