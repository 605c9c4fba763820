// Package browser fetches pages rendered by headless Chrome.
//
// Chrome is launched lazily on the first Fetch (or a remote instance is
// attached when RemoteURL is set) and reused until Close. Each page gets a
// fresh stealth tab and is read once the network has been quiet for
// networkIdle. Close kills a launched Chrome but only drops the connection to
// a remote one, which other clients may share.
package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/fetcher/extract"
)

// Config configures a Fetcher.
type Config struct {
	Extractor *extract.Extractor
	// Timeout bounds navigation plus extraction of one page.
	Timeout time.Duration
	// WaitSelector, when set, is awaited after load before reading the DOM.
	WaitSelector string
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	RemoteURL string
	// Bin overrides the Chrome binary used by the launcher.
	Bin    string
	Logger *slog.Logger
}

// Fetcher renders pages in Chrome and extracts records.
type Fetcher struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	// remote is the DevTools connection to a Chrome we do not own.
	remote io.Closer
}

// networkIdle is how long no request may be in flight before the DOM is read.
const networkIdle = 500 * time.Millisecond

// New creates a Fetcher. Chrome is not started until the first Fetch.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{cfg: cfg, log: cfg.Logger.With("component", "browser")}
}

// Fetch navigates to pageURL and extracts records from the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) ([]map[string]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil || base.Scheme == "" {
		return nil, domain.ErrFetch.WithDetailsf("invalid url %q", pageURL).WithCause(err)
	}

	b, err := f.connect()
	if err != nil {
		return nil, domain.ErrFetch.WithDetails(pageURL).WithCause(err)
	}

	html, err := f.render(ctx, b, pageURL)
	if err != nil {
		return nil, domain.ErrFetch.WithDetails(pageURL).WithCause(err)
	}

	rows, err := f.cfg.Extractor.Extract(strings.NewReader(html), base)
	if err != nil {
		return nil, domain.ErrFetch.WithDetails(pageURL).WithCause(err)
	}
	f.log.Debug("rendered", "url", pageURL, "records", len(rows))
	return rows, nil
}

func (f *Fetcher) render(ctx context.Context, b *rod.Browser, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	page, err := stealth.Page(b)
	if err != nil {
		return "", fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	p := page.Context(ctx)
	idle := p.WaitRequestIdle(networkIdle, nil, nil, nil)
	if err := p.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("browser: navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("browser: wait load: %w", err)
	}
	idle()
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("browser: wait network idle: %w", err)
	}
	if f.cfg.WaitSelector != "" {
		if _, err := p.Element(f.cfg.WaitSelector); err != nil {
			return "", fmt.Errorf("browser: wait for %q: %w", f.cfg.WaitSelector, err)
		}
	}

	res, err := p.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

func (f *Fetcher) connect() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	if f.cfg.RemoteURL != "" {
		return f.attachLocked(f.cfg.RemoteURL)
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled")
	if f.cfg.Bin != "" {
		l = l.Bin(f.cfg.Bin)
	}
	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}
	f.lnch = l
	f.log.Info("launched local chrome", "url", wsURL)

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		f.cleanupLocked()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	f.browser = b
	return b, nil
}

// attachLocked connects to a remote Chrome over a websocket we keep, so Close
// can hang up without sending Browser.close.
func (f *Fetcher) attachLocked(wsURL string) (*rod.Browser, error) {
	f.log.Info("connecting to remote chrome", "url", wsURL)
	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.Timeout)
	defer cancel()

	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, wsURL, nil); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	b := rod.New().Client(cdp.New().Start(ws))
	if err := b.Connect(); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	f.browser = b
	f.remote = ws
	return b, nil
}

// Close shuts down a launched browser, or disconnects from a remote one.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanupLocked()
}

func (f *Fetcher) cleanupLocked() error {
	var err error
	switch {
	case f.remote != nil:
		err = f.remote.Close()
		f.remote = nil
	case f.browser != nil:
		err = f.browser.Close()
	}
	f.browser = nil
	if f.lnch != nil {
		f.lnch.Cleanup()
		f.lnch = nil
	}
	return err
}
