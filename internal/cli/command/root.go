package command

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/scrapedelta/internal/cli/output"
	"github.com/yndnr/scrapedelta/internal/config"
	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/infra/buildinfo"
	"github.com/yndnr/scrapedelta/internal/storage/index"
	"github.com/yndnr/scrapedelta/internal/storage/snapshot"
	"github.com/yndnr/scrapedelta/internal/telemetry/logger"
)

// Exit codes shared with the scrapedelta binary.
const (
	ExitOK     = 0
	ExitConfig = 1
	ExitFatal  = 2
	ExitLocked = 3
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "scrapedelta-cli",
		Usage:   "Inspect and maintain a scrapedelta output directory",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			RunsCommand(),
			ArchiveCommand(),
			LatestCommand(),
			DiffCommand(),
			VerifyCommand(),
			PruneCommand(),
			FetchCommand(),
			SealCommand(),
			VersionCommand(),
		},
		Before: func(c *cli.Context) error {
			if _, err := output.ParseFormat(c.String("output")); err != nil {
				return cli.Exit(err.Error(), ExitConfig)
			}
			return nil
		},
		// main maps errors to exit codes.
		ExitErrHandler:  func(*cli.Context, error) {},
		HideHelpCommand: true,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the scrapedelta configuration file",
			EnvVars: []string{"SCRAPEDELTA_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "Output directory (overrides storage.output_dir)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:  "no-headers",
			Usage: "Omit table headers",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log diagnostics to stderr",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Config    string
	Dir       string
	Output    output.Format
	Wide      bool
	NoHeaders bool
	Verbose   bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, _ := output.ParseFormat(c.String("output"))
	return &GlobalFlags{
		Config:    c.String("config"),
		Dir:       c.String("dir"),
		Output:    format,
		Wide:      c.Bool("wide"),
		NoHeaders: c.Bool("no-headers"),
		Verbose:   c.Bool("verbose"),
	}
}

// loadConfig loads the configuration named by --config, applying --dir.
func loadConfig(c *cli.Context) (*config.Config, error) {
	flags := ParseGlobalFlags(c)
	overrides := map[string]any{}
	if flags.Dir != "" {
		overrides["storage.output_dir"] = flags.Dir
	}
	return config.Load(flags.Config, overrides)
}

// newLogger returns a stderr logger when --verbose is set.
func newLogger(c *cli.Context) *slog.Logger {
	if !ParseGlobalFlags(c).Verbose {
		return logger.Discard().Slog()
	}
	l, err := logger.New(logger.Config{Level: "debug", Format: "text", Output: c.App.ErrWriter})
	if err != nil {
		return logger.Discard().Slog()
	}
	return l.Slog()
}

func storeConfig(cfg *config.Config) snapshot.Config {
	return snapshot.Config{
		Dir:               cfg.Storage.OutputDir,
		Fields:            cfg.Target.FieldNames(),
		HashFields:        cfg.Target.HashFields,
		FingerprintColumn: cfg.Storage.FingerprintColumn,
	}
}

func openStore(c *cli.Context, cfg *config.Config) (*snapshot.Store, error) {
	sc := storeConfig(cfg)
	sc.Logger = newLogger(c)
	return snapshot.NewStore(sc)
}

func openIndex(c *cli.Context, cfg *config.Config) (*index.Index, error) {
	return index.Open(index.Config{
		Dir: filepath.Join(cfg.Storage.OutputDir, index.DirName),
	}, newLogger(c))
}

// render writes data in the selected output format.
func render(c *cli.Context, data any) error {
	flags := ParseGlobalFlags(c)
	return output.NewFormatter(flags.Output, flags.Wide, flags.NoHeaders).Format(c.App.Writer, data)
}

func stdout(c *cli.Context) io.Writer {
	return c.App.Writer
}

// ExitCode maps an error returned by App().Run to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	switch {
	case errors.Is(err, domain.ErrArchiveLocked):
		return ExitLocked
	case errors.Is(err, domain.ErrConfig):
		return ExitConfig
	}
	return ExitFatal
}

// PrintError prints an error message to w.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}

func renderYAML(c *cli.Context, data any) error {
	return (&output.YAMLFormatter{}).Format(c.App.Writer, data)
}
