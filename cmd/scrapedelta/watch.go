package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yndnr/scrapedelta/internal/config"
	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/core/service"
	"github.com/yndnr/scrapedelta/internal/infra/confloader"
	"github.com/yndnr/scrapedelta/internal/infra/shutdown"
	"github.com/yndnr/scrapedelta/internal/server/httpserver"
)

const shutdownTimeout = 30 * time.Second

var errRunAborted = errors.New("in-flight run canceled at shutdown deadline")

// statusTracker records the outcome of watch-mode runs for the status server.
type statusTracker struct {
	mu sync.Mutex
	st httpserver.Status
}

func (t *statusTracker) Status() httpserver.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st
}

func (t *statusTracker) started() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.Running = true
	t.st.NextRun = time.Time{}
}

func (t *statusTracker) finished(res *service.Result, err error, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.Running = false
	t.st.Runs++
	t.st.LastError = ""
	if res != nil {
		t.st.LastRunID = res.RunID
		t.st.LastState = res.State
	}
	if err != nil {
		t.st.LastState = domain.StateFailed
		t.st.LastError = err.Error()
		return
	}
	t.st.LastSuccess = now
}

func (t *statusTracker) scheduled(next time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.NextRun = next
}

// scheduler runs fn immediately and then every interval() until stop is done.
type scheduler struct {
	interval func() time.Duration
	fn       func(ctx context.Context) (*service.Result, error)
	status   *statusTracker
	before   func()
	now      func() time.Time
}

// loop blocks until stop is canceled. Runs use runCtx, which outlives stop so
// a run in progress at shutdown can finish.
func (s *scheduler) loop(stop, runCtx context.Context) {
	for {
		if stop.Err() != nil {
			return
		}
		if s.before != nil {
			s.before()
		}
		s.status.started()
		res, err := s.fn(runCtx)
		s.status.finished(res, err, s.now())

		interval := s.interval()
		s.status.scheduled(s.now().Add(interval))
		timer := time.NewTimer(interval)
		select {
		case <-stop.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (a *app) watch() int {
	h := shutdown.NewHandler(shutdownTimeout)
	h.Listen()

	tracker := &statusTracker{}
	cfg := a.config()

	if cfg.Metrics.Addr != "" {
		srv := httpserver.New(cfg.Metrics.Addr, httpserver.NewRouter(httpserver.RouterConfig{
			Status:  tracker.Status,
			Runs:    a.index,
			Metrics: a.metrics.Handler(),
			Logger:  a.log.Slog(),
		}))
		errCh := make(chan error, 1)
		addr, err := srv.Start(errCh)
		if err != nil {
			a.log.Error("status server listen failed", "addr", cfg.Metrics.Addr, "error", err)
			return exitConfig
		}
		a.log.Info("status server listening", "addr", addr.String())
		go func() {
			select {
			case err := <-errCh:
				a.log.Error("status server failed", "error", err)
				h.Trigger()
			case <-h.Done():
			}
		}()
		h.OnShutdown(func(ctx context.Context) error {
			a.log.Info("shutting down status server")
			return srv.Shutdown(ctx)
		})
	}

	var pending pendingConfig
	if path := a.opts.configFile; path != "" {
		w, err := confloader.NewWatcher(confloader.WithWatcherLogger(a.log.Slog()))
		if err == nil {
			err = w.Watch(path)
		}
		if err != nil {
			a.log.Warn("config hot reload disabled", "path", path, "error", err)
		} else {
			w.OnChange(func(string) {
				next, err := config.Load(path, a.opts.overrides)
				if err != nil {
					a.log.Error("config change rejected", "path", path, "error", err)
					return
				}
				a.log.Info("config change detected, applying before next run", "path", path)
				pending.set(next)
			})
			w.StartAsync()
			h.OnShutdown(func(context.Context) error {
				return w.Stop()
			})
		}
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	loopDone := make(chan struct{})

	// Registered last so it runs first: wait for the in-flight run.
	h.OnShutdown(func(ctx context.Context) error {
		a.log.Info("shutdown requested, waiting for in-flight run")
		select {
		case <-loopDone:
			return nil
		case <-ctx.Done():
			cancelRun()
			<-loopDone
			return errRunAborted
		}
	})

	s := &scheduler{
		interval: func() time.Duration {
			if d := a.config().Schedule.Interval; d > 0 {
				return d
			}
			return config.DefaultInterval
		},
		fn:     a.runOnce,
		status: tracker,
		now:    time.Now,
		before: func() {
			if next := pending.take(); next != nil {
				a.reload(next)
			}
		},
	}
	a.log.Info("watch mode started", "interval", cfg.Schedule.Interval)
	go func() {
		defer close(loopDone)
		s.loop(h.Context(), runCtx)
	}()

	if err := h.Wait(); err != nil {
		a.log.Error("shutdown error", "error", err)
		return exitFatal
	}
	a.log.Info("scrapedelta stopped")
	return exitOK
}

// pendingConfig holds the newest reloaded configuration until the scheduler
// applies it.
type pendingConfig struct {
	mu  sync.Mutex
	cfg *config.Config
}

func (p *pendingConfig) set(cfg *config.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

func (p *pendingConfig) take() *config.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	cfg := p.cfg
	p.cfg = nil
	return cfg
}
