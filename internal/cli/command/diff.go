package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/scrapedelta/internal/cli/output"
	"github.com/yndnr/scrapedelta/internal/core/delta"
	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/storage/snapshot"
)

// DiffCommand returns the diff command.
func DiffCommand() *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "Compare two snapshot CSV files by record fingerprint",
		ArgsUsage: "OLD.csv NEW.csv",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "summary",
				Aliases: []string{"s"},
				Usage:   "Print only the counts",
			},
		},
		Action: diffFiles,
	}
}

type diffSummary struct {
	Old       string `json:"old"`
	New       string `json:"new"`
	Added     int    `json:"added"`
	Removed   int    `json:"removed"`
	Unchanged int    `json:"unchanged"`
	// Identical is decided by the delta; digests are a hint and may collide.
	Identical bool   `json:"identical"`
	OldDigest uint64 `json:"old_digest"`
	NewDigest uint64 `json:"new_digest"`
}

func (s diffSummary) Table(bool) *output.Table {
	t := output.NewTable("ADDED", "REMOVED", "UNCHANGED", "IDENTICAL")
	t.AddRow(fmt.Sprint(s.Added), fmt.Sprint(s.Removed), fmt.Sprint(s.Unchanged), fmt.Sprint(s.Identical))
	return t
}

type diffView struct {
	diffSummary
	AddedRecords   recordList `json:"added_records"`
	RemovedRecords recordList `json:"removed_records"`
}

func diffFiles(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: scrapedelta-cli diff OLD.csv NEW.csv", ExitConfig)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	codec := snapshot.NewCodec(storeConfig(cfg))

	prev, err := readSnapshot(codec, c.Args().Get(0))
	if err != nil {
		return err
	}
	next, err := readSnapshot(codec, c.Args().Get(1))
	if err != nil {
		return err
	}

	d := delta.Diff(next, prev)
	st := delta.Summarize(next, d)
	view := diffView{
		diffSummary: diffSummary{
			Old:       c.Args().Get(0),
			New:       c.Args().Get(1),
			Added:     st.Added,
			Removed:   st.Removed,
			Unchanged: st.Unchanged,
			Identical: d.IsEmpty(),
			OldDigest: delta.Digest(prev),
			NewDigest: delta.Digest(next),
		},
		AddedRecords:   newRecordList(codec, d.Added),
		RemovedRecords: newRecordList(codec, d.Removed),
	}

	if c.Bool("summary") {
		return render(c, view.diffSummary)
	}
	flags := ParseGlobalFlags(c)
	if flags.Output != output.FormatTable {
		return render(c, view)
	}

	w := stdout(c)
	if err := render(c, view.diffSummary); err != nil {
		return err
	}
	for _, section := range []struct {
		title string
		list  recordList
	}{
		{"added", view.AddedRecords},
		{"removed", view.RemovedRecords},
	} {
		if len(section.list.records) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s (%d):\n", section.title, len(section.list.records))
		if err := render(c, section.list); err != nil {
			return err
		}
	}
	return nil
}

func readSnapshot(codec snapshot.Codec, path string) (*domain.Snapshot, error) {
	records, err := codec.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &domain.Snapshot{Records: records}, nil
}
