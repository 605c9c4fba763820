package command

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/scrapedelta/internal/core/delta"
	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/storage/index"
	"github.com/yndnr/scrapedelta/internal/storage/snapshot"
)

var hashKeys = []string{"name", "price"}

// runCLI runs the app with args and returns stdout, stderr and the exit code.
func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := App()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"scrapedelta-cli"}, args...))
	if err != nil {
		PrintError(&stderr, err)
	}
	return stdout.String(), stderr.String(), ExitCode(err)
}

func row(name, price string) map[string]string {
	return map[string]string{"name": name, "price": price}
}

func snap(rows ...map[string]string) *domain.Snapshot {
	return domain.NewSnapshot(rows, hashKeys, time.Now())
}

// seedArchive writes two runs the way the runner does:
// 20260101_120000 bootstraps A/10, 20260101_130000 sees A/12 instead.
func seedArchive(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	store, err := snapshot.NewStore(snapshot.Config{Dir: dir, Fields: hashKeys, HashFields: hashKeys})
	if err != nil {
		t.Fatal(err)
	}
	ix, err := index.Open(index.Config{Dir: filepath.Join(dir, index.DirName)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	var prev *domain.Snapshot
	for i, s := range []*domain.Snapshot{
		snap(row("A", "10"), row("B", "5")),
		snap(row("A", "12"), row("B", "5")),
	} {
		id := domain.RunID([]string{"20260101_120000", "20260101_130000"}[i])
		if _, err := store.Archive(s, id); err != nil {
			t.Fatal(err)
		}
		d := delta.Diff(s, prev)
		if _, _, err := store.ArchiveDelta(d, id); err != nil {
			t.Fatal(err)
		}
		if err := store.SaveLatest(s); err != nil {
			t.Fatal(err)
		}
		start, _ := id.Time()
		err := ix.Put(context.Background(), &index.RunRecord{
			RunID:      id,
			TraceID:    domain.NewTraceID(),
			StartedAt:  start,
			FinishedAt: start.Add(time.Second),
			State:      domain.StateDone,
			Records:    s.Len(),
			Added:      len(d.Added),
			Removed:    len(d.Removed),
			Bootstrap:  prev == nil,
		})
		if err != nil {
			t.Fatal(err)
		}
		prev = s
	}
	return dir
}
