package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/scrapedelta/internal/cli/output"
	"github.com/yndnr/scrapedelta/internal/core/domain"
)

// RunsCommand returns the runs subcommand group.
func RunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List runs recorded in the run index",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Show only the newest N runs (0 for all)",
				Value:   20,
			},
			&cli.BoolFlag{
				Name:  "failed",
				Usage: "Show only failed runs",
			},
		},
		Action: runsList,
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show one run",
				ArgsUsage: "RUN_ID",
				Action:    runsShow,
			},
			{
				Name:   "last-success",
				Usage:  "Show the newest successful run",
				Action: runsLastSuccess,
			},
		},
	}
}

func runsList(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ix, err := openIndex(c, cfg)
	if err != nil {
		return err
	}
	defer ix.Close()

	limit := c.Int("limit")
	if c.Bool("failed") {
		// Filter before limiting.
		limit = 0
	}
	runs, err := ix.List(c.Context, limit)
	if err != nil {
		return err
	}
	if c.Bool("failed") {
		var failed runList
		for _, r := range runs {
			if r.State == domain.StateFailed {
				failed = append(failed, r)
			}
		}
		if n := c.Int("limit"); n > 0 && len(failed) > n {
			failed = failed[len(failed)-n:]
		}
		return render(c, failed)
	}
	return render(c, runList(runs))
}

func runsShow(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: scrapedelta-cli runs show RUN_ID", ExitConfig)
	}
	id := domain.RunID(c.Args().First())
	if !id.Valid() {
		return cli.Exit(fmt.Sprintf("invalid run id %q", id), ExitConfig)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ix, err := openIndex(c, cfg)
	if err != nil {
		return err
	}
	defer ix.Close()

	rec, err := ix.Get(c.Context, id)
	if err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output == output.FormatTable {
		// A single run reads better as YAML than as a one-row table.
		return renderYAML(c, rec)
	}
	return render(c, rec)
}

func runsLastSuccess(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ix, err := openIndex(c, cfg)
	if err != nil {
		return err
	}
	defer ix.Close()

	rec, err := ix.LastSuccess(c.Context)
	if err != nil {
		return err
	}
	return render(c, runList{rec})
}
