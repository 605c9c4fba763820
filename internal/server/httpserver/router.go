package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/storage/index"
)

// Status is the watch loop's view of its runs.
type Status struct {
	LastRunID   domain.RunID    `json:"last_run_id,omitempty"`
	LastState   domain.RunState `json:"last_state,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	LastSuccess time.Time       `json:"last_success"`
	NextRun     time.Time       `json:"next_run"`
	Runs        int             `json:"runs"`
	Running     bool            `json:"running"`
}

// Ready reports whether the last finished run succeeded.
func (s Status) Ready() bool {
	return s.LastState == domain.StateDone
}

// StatusFunc returns the current status.
type StatusFunc func() Status

// RunLister lists recent runs.
type RunLister interface {
	List(ctx context.Context, limit int) ([]*index.RunRecord, error)
}

// RouterConfig holds the router's collaborators.
type RouterConfig struct {
	Status  StatusFunc
	Runs    RunLister
	Metrics http.Handler
	Logger  *slog.Logger
}

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewRouter builds the status mux.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		st := cfg.Status()
		if !st.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, st)
			return
		}
		writeJSON(w, http.StatusOK, st)
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cfg.Status())
	})

	mux.HandleFunc("GET /runs", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runs == nil {
			writeJSON(w, http.StatusNotFound, errorBody{Code: "SD-ARCH-4040", Message: "run index not available"})
			return
		}
		limit := defaultRunsLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeJSON(w, http.StatusBadRequest, errorBody{Code: "SD-REQ-4000", Message: "limit must be a positive integer"})
				return
			}
			limit = min(n, maxRunsLimit)
		}
		runs, err := cfg.Runs.List(r.Context(), limit)
		if err != nil {
			cfg.Logger.Error("list runs", "error", err)
			code := domain.GetErrorCode(err)
			if code == "" {
				code = "SD-SYS-5000"
			}
			writeJSON(w, http.StatusInternalServerError, errorBody{Code: code, Message: "list runs failed"})
			return
		}
		if runs == nil {
			runs = []*index.RunRecord{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	return Chain(mux, RequestID(), Recover(cfg.Logger), AccessLog(cfg.Logger))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
