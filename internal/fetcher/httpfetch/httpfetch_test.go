package httpfetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/fetcher/extract"
)

const page = `<html><body>
<div class="product-card"><span class="product-name">A</span><span class="price">10</span></div>
<div class="product-card"><span class="product-name">B</span><span class="price">20</span></div>
</body></html>`

func newFetcher(t *testing.T, attempts int) *Fetcher {
	t.Helper()
	ex, err := extract.New(".product-card", []extract.Field{
		{Name: "name", Selector: ".product-name"},
		{Name: "price", Selector: ".price"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return New(Config{
		Extractor:       ex,
		Timeout:         5 * time.Second,
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestFetch(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	f := newFetcher(t, 1)
	defer f.Close()
	rows, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(rows) != 2 || rows[1]["name"] != "B" || rows[1]["price"] != "20" {
		t.Errorf("rows = %v", rows)
	}
	if ua.Load() != DefaultUserAgent {
		t.Errorf("User-Agent = %v", ua.Load())
	}
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	rows, err := newFetcher(t, 3).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(rows) != 2 || calls.Load() != 3 {
		t.Errorf("rows = %d, calls = %d", len(rows), calls.Load())
	}
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		attempts  int
		wantCalls int32
	}{
		{"not found is permanent", http.StatusNotFound, 3, 1},
		{"forbidden is permanent", http.StatusForbidden, 3, 1},
		{"server error exhausts attempts", http.StatusBadGateway, 3, 3},
		{"rate limited exhausts attempts", http.StatusTooManyRequests, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newFetcher(t, tt.attempts).Fetch(context.Background(), srv.URL)
			if !errors.Is(err, domain.ErrFetch) {
				t.Fatalf("Fetch() error = %v, want ErrFetch", err)
			}
			var serr *StatusError
			if !errors.As(err, &serr) || serr.StatusCode != tt.status {
				t.Errorf("StatusError = %v", serr)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestFetch_BodySizeLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	t.Run("oversized page fails without retry", func(t *testing.T) {
		f := newFetcher(t, 3)
		f.cfg.MaxBodySize = int64(len(page)) - 1
		calls.Store(0)
		rows, err := f.Fetch(context.Background(), srv.URL)
		if !errors.Is(err, domain.ErrFetch) {
			t.Fatalf("Fetch() error = %v, want ErrFetch", err)
		}
		if rows != nil {
			t.Errorf("rows = %v, want none from a truncated page", rows)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("page at the limit is read", func(t *testing.T) {
		f := newFetcher(t, 1)
		f.cfg.MaxBodySize = int64(len(page))
		rows, err := f.Fetch(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if len(rows) != 2 {
			t.Errorf("rows = %d, want 2", len(rows))
		}
	})
}

func TestFetch_InvalidURL(t *testing.T) {
	_, err := newFetcher(t, 1).Fetch(context.Background(), "not a url")
	if !errors.Is(err, domain.ErrFetch) {
		t.Errorf("Fetch() error = %v, want ErrFetch", err)
	}
}

func TestFetch_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := newFetcher(t, 5).Fetch(ctx, srv.URL)
	if !errors.Is(err, domain.ErrFetch) {
		t.Fatalf("Fetch() error = %v, want ErrFetch", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("canceled fetch kept retrying")
	}
}

func TestFetch_FileURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}
	rows, err := newFetcher(t, 1).Fetch(context.Background(), "file://"+filepath.ToSlash(path))
	if err != nil {
		t.Fatalf("Fetch(file://) error = %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
}

func TestFetch_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	f := newFetcher(t, 1)
	f.limiter.SetLimit(20) // 50ms between requests

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 fetches took %v, want pacing", elapsed)
	}
}

func TestFetch_TLSConfig(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	ex, err := extract.New(".product-card", []extract.Field{{Name: "name", Selector: ".product-name"}})
	if err != nil {
		t.Fatal(err)
	}
	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())
	f := New(Config{
		Extractor: ex,
		Timeout:   5 * time.Second,
		TLSConfig: &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	defer f.Close()

	rows, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("rows = %v", rows)
	}
}
