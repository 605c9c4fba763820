package command

import (
	"maps"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/yndnr/scrapedelta/internal/cli/output"
	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/internal/storage/index"
	"github.com/yndnr/scrapedelta/internal/storage/snapshot"
)

const shortFingerprint = 12

// recordList renders records with the codec's column order.
type recordList struct {
	columns  []string
	fpColumn string
	records  []domain.Record
}

func newRecordList(codec snapshot.Codec, records []domain.Record) recordList {
	return recordList{
		columns:  codec.Columns(records),
		fpColumn: codec.FingerprintColumn,
		records:  records,
	}
}

func (l recordList) rows() []map[string]string {
	out := make([]map[string]string, 0, len(l.records))
	for _, r := range l.records {
		row := make(map[string]string, len(r.Fields)+1)
		maps.Copy(row, r.Fields)
		row[l.fpColumn] = r.Fingerprint.String()
		out = append(out, row)
	}
	return out
}

func (l recordList) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.rows())
}

func (l recordList) Table(wide bool) *output.Table {
	headers := make([]string, len(l.columns))
	for i, c := range l.columns {
		headers[i] = upper(c)
	}
	t := output.NewTable(headers...)
	last := len(l.columns) - 1
	for _, r := range l.records {
		cells := make([]string, len(l.columns))
		for i, col := range l.columns[:last] {
			v := r.Fields[col]
			if !wide {
				v = output.Truncate(v, 60)
			}
			cells[i] = v
		}
		fp := r.Fingerprint.String()
		if !wide {
			fp = fp[:shortFingerprint]
		}
		cells[last] = fp
		t.AddRow(cells...)
	}
	return t
}

// runList renders run index records.
type runList []*index.RunRecord

func (l runList) Table(wide bool) *output.Table {
	t := output.NewTable("RUN ID", "STATE", "RECORDS", "ADDED", "REMOVED", "DURATION")
	if wide {
		t.Headers = append(t.Headers, "TRACE ID", "EXPORTED", "FLAGS", "ERROR")
	}
	for _, r := range l {
		state := string(r.State)
		if r.FailedStage != "" {
			state += "@" + string(r.FailedStage)
		}
		cells := []string{
			r.RunID.String(),
			state,
			strconv.Itoa(r.Records),
			strconv.Itoa(r.Added),
			strconv.Itoa(r.Removed),
			output.Duration(r.Duration()),
		}
		if wide {
			cells = append(cells,
				r.TraceID,
				strconv.Itoa(r.Exported)+"/"+strconv.Itoa(r.Exported+r.ExportFails),
				runFlags(r),
				output.Truncate(r.Error, 80),
			)
		}
		t.AddRow(cells...)
	}
	return t
}

func runFlags(r *index.RunRecord) string {
	var flags []string
	if r.Bootstrap {
		flags = append(flags, "bootstrap")
	}
	if r.EmptyFetch {
		flags = append(flags, "empty-fetch")
	}
	return strings.Join(flags, ",")
}

// artifactInfo describes one archived file.
type artifactInfo struct {
	RunID domain.RunID  `json:"run_id"`
	Kind  snapshot.Kind `json:"kind"`
	Path  string        `json:"path"`
	Rows  int           `json:"rows"`
	Size  int64         `json:"size"`
}

type artifactList []artifactInfo

func (l artifactList) Table(wide bool) *output.Table {
	t := output.NewTable("RUN ID", "KIND", "ROWS", "SIZE")
	if wide {
		t.Headers = append(t.Headers, "PATH")
	}
	for _, a := range l {
		cells := []string{a.RunID.String(), string(a.Kind), strconv.Itoa(a.Rows), output.Bytes(a.Size)}
		if wide {
			cells = append(cells, a.Path)
		}
		t.AddRow(cells...)
	}
	return t
}

// entryList renders archive entries, one line per run.
type entryList []snapshot.ArchiveEntry

func (l entryList) Table(wide bool) *output.Table {
	t := output.NewTable("RUN ID", "SNAPSHOT", "ADDED", "REMOVED")
	for _, e := range l {
		t.AddRow(e.RunID.String(), present(e.Snapshot), present(e.Added), present(e.Removed))
	}
	return t
}

func present(path string) string {
	if path == "" {
		return "-"
	}
	return "yes"
}

func upper(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, "_", " "))
}

type statsView snapshot.Stats

func (s statsView) Table(bool) *output.Table {
	t := output.NewTable("RUNS", "ARTIFACTS", "SIZE")
	t.AddRow(strconv.Itoa(s.Runs), strconv.Itoa(s.Artifacts), output.Bytes(s.Bytes))
	return t
}
