package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/storage/snapshot"
)

// ArchiveCommand returns the archive subcommand group.
func ArchiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Inspect archived artifacts",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List archived runs and which artifacts they wrote",
				Action: archiveList,
			},
			{
				Name:      "show",
				Usage:     "Show the artifacts of one run, or the records of one artifact",
				ArgsUsage: "RUN_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "kind",
						Aliases: []string{"k"},
						Usage:   "Print the records of this artifact: snapshot, added or removed",
					},
				},
				Action: archiveShow,
			},
			{
				Name:   "stats",
				Usage:  "Summarize archive size",
				Action: archiveStats,
			},
		},
	}
}

func archiveList(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	entries, err := store.List()
	if err != nil {
		return err
	}
	return render(c, entryList(entries))
}

func archiveShow(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: scrapedelta-cli archive show RUN_ID [--kind KIND]", ExitConfig)
	}
	id := domain.RunID(c.Args().First())
	if !id.Valid() {
		return cli.Exit(fmt.Sprintf("invalid run id %q", id), ExitConfig)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	entry, err := store.Run(id)
	if err != nil {
		return err
	}

	if kind := c.String("kind"); kind != "" {
		path, err := entryPath(entry, snapshot.Kind(kind))
		if err != nil {
			return err
		}
		records, err := store.ReadArtifact(path)
		if err != nil {
			return err
		}
		return render(c, newRecordList(store.Codec(), records))
	}

	var arts artifactList
	for _, kind := range []snapshot.Kind{snapshot.KindSnapshot, snapshot.KindAdded, snapshot.KindRemoved} {
		path, err := entryPath(entry, kind)
		if err != nil {
			continue
		}
		fi, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		records, err := store.ReadArtifact(path)
		if err != nil {
			return err
		}
		arts = append(arts, artifactInfo{RunID: id, Kind: kind, Path: path, Rows: len(records), Size: fi.Size()})
	}
	return render(c, arts)
}

// entryPath returns the path of kind in entry, or ErrRunNotFound when the
// run did not write that artifact.
func entryPath(entry *snapshot.ArchiveEntry, kind snapshot.Kind) (string, error) {
	var path string
	switch kind {
	case snapshot.KindSnapshot:
		path = entry.Snapshot
	case snapshot.KindAdded:
		path = entry.Added
	case snapshot.KindRemoved:
		path = entry.Removed
	default:
		return "", cli.Exit(fmt.Sprintf("unknown artifact kind %q (want snapshot, added or removed)", kind), ExitConfig)
	}
	if path == "" {
		return "", domain.ErrRunNotFound.WithDetailsf("run %s has no %s artifact", entry.RunID, kind)
	}
	return path, nil
}

func archiveStats(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	st, err := store.Stats()
	if err != nil {
		return err
	}
	return render(c, statsView(st))
}
