package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Hook runs during shutdown. ctx expires at the shutdown deadline.
type Hook func(ctx context.Context) error

// Handler handles graceful shutdown.
type Handler struct {
	timeout time.Duration

	mu    sync.Mutex
	hooks []Hook

	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
	err  error
}

// NewHandler creates a handler whose hooks share timeout.
func NewHandler(timeout time.Duration) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a hook. Hooks run in reverse order of registration.
func (h *Handler) OnShutdown(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Context is canceled as soon as shutdown starts.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Listen starts shutdown on the first SIGINT or SIGTERM.
func (h *Handler) Listen() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			h.Trigger()
		case <-h.done:
		}
	}()
}

// Trigger starts shutdown. Later calls are no-ops.
func (h *Handler) Trigger() {
	h.once.Do(func() {
		go h.run()
	})
}

func (h *Handler) run() {
	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]Hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	h.err = errors.Join(errs...)
	close(h.done)
}

// Wait blocks until every hook has run and returns their joined errors.
func (h *Handler) Wait() error {
	<-h.done
	return h.err
}

// Done is closed when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
