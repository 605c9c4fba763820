package command

import (
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/scrapedelta/internal/cli/output"
	"github.com/yndnr/scrapedelta/internal/infra/buildinfo"
)

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			return render(c, versionView(buildinfo.Get()))
		},
	}
}

type versionView buildinfo.Info

func (v versionView) Table(bool) *output.Table {
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("version", v.Version)
	t.AddRow("commit", v.Commit)
	t.AddRow("built", v.BuildTime)
	t.AddRow("go", v.GoVersion)
	t.AddRow("modified", strconv.FormatBool(v.Modified))
	return t
}
