package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/scrapedelta/internal/cli/output"
	"github.com/yndnr/scrapedelta/internal/core/domain"
)

// PruneCommand returns the prune command.
func PruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete archived runs older than the newest N, with their index records",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "keep",
				Aliases: []string{"k"},
				Usage:   "Number of newest runs to keep (defaults to storage.keep_runs)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Preview without deleting",
			},
		},
		Action: pruneArchive,
	}
}

type pruneResult struct {
	Kept    int            `json:"kept"`
	Removed []domain.RunID `json:"removed"`
	DryRun  bool           `json:"dry_run,omitempty"`
}

func pruneArchive(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	keep := cfg.Storage.KeepRuns
	if c.IsSet("keep") {
		keep = c.Int("keep")
	}
	if keep < 1 {
		return cli.Exit("prune needs --keep N (N >= 1) or storage.keep_runs", ExitConfig)
	}

	// The index lock keeps a concurrent run from writing while we delete.
	ix, err := openIndex(c, cfg)
	if err != nil {
		return err
	}
	defer ix.Close()

	store, err := openStore(c, cfg)
	if err != nil {
		return err
	}

	entries, err := store.List()
	if err != nil {
		return err
	}

	res := pruneResult{DryRun: c.Bool("dry-run")}
	if res.DryRun {
		for i := 0; i < len(entries)-keep; i++ {
			res.Removed = append(res.Removed, entries[i].RunID)
		}
	} else {
		removed, err := store.Prune(keep)
		if err != nil {
			return err
		}
		res.Removed = removed
		if err := ix.Delete(c.Context, removed...); err != nil {
			return fmt.Errorf("prune index: %w", err)
		}
		// The records are gone either way; a failed GC only delays reclaiming space.
		log := newLogger(c)
		if n, err := ix.GC(); err != nil {
			log.Warn("index gc failed", "error", err)
		} else {
			log.Debug("index gc done", "rewritten", n)
		}
	}
	res.Kept = len(entries) - len(res.Removed)

	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, res)
	}
	w := stdout(c)
	verb := "removed"
	if res.DryRun {
		verb = "would remove"
	}
	for _, id := range res.Removed {
		fmt.Fprintf(w, "%s %s\n", verb, id)
	}
	fmt.Fprintf(w, "%d runs %s, %d kept\n", len(res.Removed), verb, res.Kept)
	return nil
}
