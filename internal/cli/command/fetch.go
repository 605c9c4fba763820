package command

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/fetcher"
	"github.com/yndnr/scrapedelta/internal/storage/snapshot"
)

// FetchCommand returns the fetch command.
func FetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Fetch and extract the configured target without writing anything",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "Fetch this URL instead of the configured target (repeatable)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Print at most N records (0 for all)",
			},
			&cli.BoolFlag{
				Name:  "count",
				Usage: "Print only the record count",
			},
		},
		Action: fetchDryRun,
	}
}

func fetchDryRun(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	urls := cfg.Target.AllURLs()
	if override := c.StringSlice("url"); len(override) > 0 {
		urls = override
	}

	f, err := fetcher.New(cfg.Target, newLogger(c))
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := fetcher.FetchAll(c.Context, f, urls)
	if err != nil {
		return err
	}
	snap := domain.NewSnapshot(rows, cfg.Target.HashFields, time.Now())

	if c.Bool("count") {
		_, err := fmt.Fprintln(stdout(c), snap.Len())
		return err
	}
	records := snap.Records
	if n := c.Int("limit"); n > 0 && len(records) > n {
		records = records[:n]
	}
	return render(c, newRecordList(snapshot.NewCodec(storeConfig(cfg)), records))
}
