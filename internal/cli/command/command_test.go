package command

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/yndnr/scrapedelta/internal/storage/index"
	"github.com/yndnr/scrapedelta/pkg/seal"
)

func TestApp_BadOutputFormat(t *testing.T) {
	_, _, code := runCLI(t, "-o", "xml", "version")
	if code != ExitConfig {
		t.Errorf("exit code = %d, want %d", code, ExitConfig)
	}
}

func TestVersion_JSON(t *testing.T) {
	out, _, code := runCLI(t, "-o", "json", "version")
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out, `"go_version"`) {
		t.Errorf("output = %s", out)
	}
}

func TestRuns_List(t *testing.T) {
	dir := seedArchive(t)

	out, stderr, code := runCLI(t, "-d", dir, "-o", "json", "runs")
	if code != ExitOK {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	var runs []index.RunRecord
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(runs) != 2 || runs[0].RunID != "20260101_120000" || !runs[0].Bootstrap {
		t.Errorf("runs = %+v", runs)
	}

	out, _, _ = runCLI(t, "-d", dir, "runs", "--limit", "1")
	if !strings.Contains(out, "20260101_130000") || strings.Contains(out, "20260101_120000") {
		t.Errorf("limited output = %s", out)
	}

	out, _, _ = runCLI(t, "-d", dir, "-o", "json", "runs", "--failed")
	if strings.TrimSpace(out) != "null" {
		t.Errorf("failed runs = %s", out)
	}
}

func TestRuns_Show(t *testing.T) {
	dir := seedArchive(t)

	out, stderr, code := runCLI(t, "-d", dir, "runs", "show", "20260101_130000")
	if code != ExitOK {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	if !strings.Contains(out, "20260101_130000") || !strings.Contains(out, "added: 1") {
		t.Errorf("output = %s", out)
	}

	if _, _, code := runCLI(t, "-d", dir, "runs", "show", "yesterday"); code != ExitConfig {
		t.Errorf("invalid id exit code = %d", code)
	}
	if _, _, code := runCLI(t, "-d", dir, "runs", "show", "20250101_000000"); code != ExitFatal {
		t.Errorf("unknown id exit code = %d", code)
	}
}

func TestRuns_Locked(t *testing.T) {
	dir := seedArchive(t)
	ix, err := index.Open(index.Config{Dir: filepath.Join(dir, index.DirName)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	_, stderr, code := runCLI(t, "-d", dir, "runs")
	if code != ExitLocked {
		t.Errorf("exit code = %d, want %d: %s", code, ExitLocked, stderr)
	}
	if !strings.Contains(stderr, "SD-ARCH-4090") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestArchive_ListAndShow(t *testing.T) {
	dir := seedArchive(t)

	out, _, code := runCLI(t, "-d", dir, "archive", "list")
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "RUN ID") {
		t.Fatalf("list output = %q", out)
	}

	out, _, code = runCLI(t, "-d", dir, "-o", "json", "archive", "show", "20260101_130000")
	if code != ExitOK {
		t.Fatalf("show exit code = %d", code)
	}
	var arts []artifactInfo
	if err := json.Unmarshal([]byte(out), &arts); err != nil {
		t.Fatal(err)
	}
	if len(arts) != 3 || arts[0].Kind != "snapshot" || arts[0].Rows != 2 || arts[1].Rows != 1 {
		t.Errorf("artifacts = %+v", arts)
	}

	out, _, code = runCLI(t, "-d", dir, "-o", "json", "archive", "show", "20260101_130000", "--kind", "removed")
	if code != ExitOK {
		t.Fatalf("show --kind exit code = %d", code)
	}
	var rows []map[string]string
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["price"] != "10" || len(rows[0]["hash"]) != 64 {
		t.Errorf("removed rows = %+v", rows)
	}

	// The bootstrap run removed nothing.
	if _, _, code := runCLI(t, "-d", dir, "archive", "show", "20260101_120000", "--kind", "removed"); code != ExitFatal {
		t.Errorf("missing artifact exit code = %d", code)
	}
	if _, _, code := runCLI(t, "-d", dir, "archive", "show", "20260101_120000", "--kind", "bogus"); code != ExitConfig {
		t.Errorf("bad kind exit code = %d", code)
	}
}

func TestArchive_Stats(t *testing.T) {
	dir := seedArchive(t)
	out, _, code := runCLI(t, "-d", dir, "-o", "json", "archive", "stats")
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	// Run 1: snapshot + added. Run 2: snapshot + added + removed.
	if !strings.Contains(out, `"runs": 2`) || !strings.Contains(out, `"artifacts": 5`) {
		t.Errorf("output = %s", out)
	}
}

func TestLatest(t *testing.T) {
	dir := seedArchive(t)
	out, _, code := runCLI(t, "-d", dir, "latest", "--count")
	if code != ExitOK || strings.TrimSpace(out) != "2" {
		t.Errorf("latest --count = %q (exit %d)", out, code)
	}

	out, _, _ = runCLI(t, "-d", dir, "latest")
	if !strings.HasPrefix(out, "NAME") || !strings.Contains(out, "12") {
		t.Errorf("latest = %q", out)
	}

	if _, _, code := runCLI(t, "-d", t.TempDir(), "latest"); code != ExitFatal {
		t.Errorf("empty dir exit code = %d", code)
	}
}

func TestDiff(t *testing.T) {
	dir := seedArchive(t)
	oldPath := filepath.Join(dir, "archive", "snapshot_20260101_120000.csv")
	newPath := filepath.Join(dir, "archive", "snapshot_20260101_130000.csv")

	out, _, code := runCLI(t, "-o", "json", "diff", oldPath, newPath)
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	var got struct {
		Added          int                 `json:"added"`
		Removed        int                 `json:"removed"`
		Unchanged      int                 `json:"unchanged"`
		Identical      bool                `json:"identical"`
		AddedRecords   []map[string]string `json:"added_records"`
		RemovedRecords []map[string]string `json:"removed_records"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if got.Added != 1 || got.Removed != 1 || got.Unchanged != 1 || got.Identical {
		t.Errorf("counts = %+v", got)
	}
	if len(got.AddedRecords) != 1 || got.AddedRecords[0]["price"] != "12" {
		t.Errorf("added = %+v", got.AddedRecords)
	}

	out, _, _ = runCLI(t, "diff", "--summary", newPath, newPath)
	if !strings.Contains(out, "true") {
		t.Errorf("identical summary = %q", out)
	}
	out, _, _ = runCLI(t, "diff", "--summary", oldPath, newPath)
	if strings.Contains(out, "true") {
		t.Errorf("changed files reported identical: %q", out)
	}

	out, _, _ = runCLI(t, "diff", oldPath, newPath)
	if !strings.Contains(out, "added (1):") || !strings.Contains(out, "removed (1):") {
		t.Errorf("table diff = %q", out)
	}

	if _, _, code := runCLI(t, "diff", oldPath); code != ExitConfig {
		t.Errorf("one arg exit code = %d", code)
	}
}

func TestVerify(t *testing.T) {
	dir := seedArchive(t)
	good := filepath.Join(dir, "latest.csv")

	out, _, code := runCLI(t, "verify", good)
	if code != ExitOK || !strings.Contains(out, " ok") {
		t.Errorf("verify good = %q (exit %d)", out, code)
	}

	data, err := os.ReadFile(good)
	if err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(t.TempDir(), "tampered.csv")
	if err := os.WriteFile(bad, []byte(strings.Replace(string(data), "A,12,", "A,13,", 1)), 0o600); err != nil {
		t.Fatal(err)
	}
	out, _, code = runCLI(t, "verify", good, bad)
	if code != ExitFatal {
		t.Errorf("exit code = %d, want %d", code, ExitFatal)
	}
	if !strings.Contains(out, "FAILED (lines 2)") {
		t.Errorf("output = %q", out)
	}

	noHash := filepath.Join(t.TempDir(), "plain.csv")
	if err := os.WriteFile(noHash, []byte("name,price\nA,10\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out, _, code = runCLI(t, "verify", noHash)
	if code != ExitOK || !strings.Contains(out, "no fingerprint column") {
		t.Errorf("plain csv = %q (exit %d)", out, code)
	}
}

func TestPrune(t *testing.T) {
	dir := seedArchive(t)

	if _, _, code := runCLI(t, "-d", dir, "prune"); code != ExitConfig {
		t.Errorf("prune without keep exit code = %d", code)
	}

	out, _, code := runCLI(t, "-d", dir, "prune", "--keep", "1", "--dry-run")
	if code != ExitOK || !strings.Contains(out, "would remove 20260101_120000") {
		t.Fatalf("dry run = %q (exit %d)", out, code)
	}
	if _, err := os.Stat(filepath.Join(dir, "archive", "snapshot_20260101_120000.csv")); err != nil {
		t.Fatalf("dry run deleted files: %v", err)
	}

	out, errOut, code := runCLI(t, "--verbose", "-d", dir, "-o", "json", "prune", "--keep", "1")
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(errOut, "index gc done") {
		t.Errorf("index gc not run after delete: %q", errOut)
	}
	var res pruneResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Removed) != 1 || res.Removed[0] != "20260101_120000" || res.Kept != 1 {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "archive", "snapshot_20260101_120000.csv")); !os.IsNotExist(err) {
		t.Errorf("old snapshot still present: %v", err)
	}

	out, _, _ = runCLI(t, "-d", dir, "-o", "json", "runs")
	if strings.Contains(out, "20260101_120000") {
		t.Errorf("index still lists pruned run: %s", out)
	}
}

func TestFetch_DryRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>
<div class="product-card"><span class="product-name">Lamp</span><span class="price">19</span></div>
<div class="product-card"><span class="product-name">Desk</span><span class="price">120</span></div>
</body></html>`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	out, stderr, code := runCLI(t, "-d", dir, "-o", "json", "fetch", "--url", srv.URL)
	if code != ExitOK {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}
	var rows []map[string]string
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(rows) != 2 || rows[0]["name"] != "Lamp" || rows[1]["price"] != "120" {
		t.Errorf("rows = %+v", rows)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "archive"))
	if err == nil && len(entries) > 0 {
		t.Errorf("fetch wrote archive files: %v", entries)
	}

	out, _, _ = runCLI(t, "-d", dir, "fetch", "--url", srv.URL, "--count")
	if strings.TrimSpace(out) != "2" {
		t.Errorf("count = %q", out)
	}
}

func TestSeal_KeygenAndOpen(t *testing.T) {
	key, _, code := runCLI(t, "seal", "keygen")
	if code != ExitOK {
		t.Fatalf("keygen exit code = %d", code)
	}
	key = strings.TrimSpace(key)

	sealer, err := seal.New(key)
	if err != nil {
		t.Fatal(err)
	}
	envelope, err := sealer.Seal([]byte("name,price,hash\n"))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "latest.csv.sealed")
	if err := os.WriteFile(path, envelope, 0o600); err != nil {
		t.Fatal(err)
	}

	out, stderr, code := runCLI(t, "seal", "open", "--key", key, path)
	if code != ExitOK || out != "name,price,hash\n" {
		t.Errorf("open = %q (exit %d: %s)", out, code, stderr)
	}

	other, _ := seal.GenerateKey()
	if _, _, code := runCLI(t, "seal", "open", "--key", other, path); code != ExitFatal {
		t.Errorf("wrong key exit code = %d", code)
	}
}

func TestDiffSummary_IdenticalIgnoresDigests(t *testing.T) {
	tests := []struct {
		name string
		s    diffSummary
		want string
	}{
		{"colliding digests", diffSummary{Added: 1, OldDigest: 7, NewDigest: 7}, "false"},
		{"empty delta", diffSummary{Identical: true, OldDigest: 7, NewDigest: 9}, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.s.Table(false).RenderWithOptions(&buf, true); err != nil {
				t.Fatal(err)
			}
			if got := strings.Fields(buf.String()); len(got) != 4 || got[3] != tt.want {
				t.Errorf("row = %q, want IDENTICAL %s", got, tt.want)
			}
		})
	}
}
