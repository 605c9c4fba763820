package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/yndnr/scrapedelta/internal/config"
	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/infra/buildinfo"
)

const (
	exitOK     = 0
	exitConfig = 1
	exitFatal  = 2
	exitLocked = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configFile string
	watch      bool
	overrides  map[string]any
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scrapedelta", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configFile  = fs.String("config", "", "Path to configuration file")
		showVersion = fs.Bool("version", false, "Show version information")
		watch       = fs.Bool("watch", false, "Repeat runs every schedule.interval until interrupted")
		outputDir   = fs.String("output-dir", "", "Output directory (overrides storage.output_dir)")
		targetURL   = fs.String("url", "", "Target URL (overrides target.url)")
		logLevel    = fs.String("log-level", "", "Log level (overrides log.level)")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}

	if *showVersion {
		fmt.Fprintf(stdout, "scrapedelta %s\n", buildinfo.String())
		return exitOK
	}

	opts := options{configFile: *configFile, watch: *watch, overrides: map[string]any{}}
	for key, val := range map[string]string{
		"storage.output_dir": *outputDir,
		"target.url":         *targetURL,
		"log.level":          *logLevel,
	} {
		if val != "" {
			opts.overrides[key] = val
		}
	}

	cfg, err := config.Load(opts.configFile, opts.overrides)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitConfig
	}

	a, err := newApp(cfg, opts, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCode(err)
	}
	defer a.Close()

	if opts.watch {
		return a.watch()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.once(ctx)
}

// exitCode maps a startup or run error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, domain.ErrArchiveLocked):
		return exitLocked
	case errors.Is(err, domain.ErrConfig):
		return exitConfig
	}
	if _, ok := domain.FailedStage(err); ok {
		return exitFatal
	}
	return exitConfig
}
