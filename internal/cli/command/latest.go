package command

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/scrapedelta/internal/storage/snapshot"
)

// LatestCommand returns the latest command.
func LatestCommand() *cli.Command {
	return &cli.Command{
		Name:  "latest",
		Usage: "Print the baseline snapshot (latest.csv)",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "count",
				Usage: "Print only the record count",
			},
		},
		Action: latestShow,
	}
}

func latestShow(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(store.LatestPath()); errors.Is(err, fs.ErrNotExist) {
		return cli.Exit(fmt.Sprintf("no %s in %s yet", snapshot.LatestFile, store.Dir()), ExitFatal)
	}
	records, err := store.ReadArtifact(store.LatestPath())
	if err != nil {
		return err
	}
	if c.Bool("count") {
		_, err := fmt.Fprintln(stdout(c), len(records))
		return err
	}
	return render(c, newRecordList(store.Codec(), records))
}
