package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/yndnr/scrapedelta/internal/core/domain"
)

// Kind is an archive artifact kind.
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindAdded    Kind = "added"
	KindRemoved  Kind = "removed"
)

var artifactName = regexp.MustCompile(`^(snapshot|added|removed)_(\d{8}_\d{6}(?:-\d{4})?)\.csv$`)

// Handle describes a published artifact.
type Handle struct {
	RunID    domain.RunID `json:"run_id"`
	Kind     Kind         `json:"kind"`
	Path     string       `json:"path"`
	Rows     int          `json:"rows"`
	Size     int64        `json:"size"`
	Checksum string       `json:"checksum"`
}

// Name returns the artifact file name.
func (h *Handle) Name() string {
	return filepath.Base(h.Path)
}

// ArchiveEntry groups the artifacts of one run. Empty paths mean the artifact
// was not written.
type ArchiveEntry struct {
	RunID    domain.RunID `json:"run_id"`
	Snapshot string       `json:"snapshot,omitempty"`
	Added    string       `json:"added,omitempty"`
	Removed  string       `json:"removed,omitempty"`
}

// Paths returns the entry's artifact paths in snapshot, added, removed order.
func (e ArchiveEntry) Paths() []string {
	var out []string
	for _, p := range []string{e.Snapshot, e.Added, e.Removed} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func artifactFile(kind Kind, id domain.RunID) string {
	return string(kind) + "_" + string(id) + fileExtension
}

// Archive writes an immutable copy of snap under runID. If runID is already
// taken the next free sequence suffix is used; the returned handle carries the
// resolved id, which must be passed to ArchiveDelta.
func (s *Store) Archive(snap *domain.Snapshot, runID domain.RunID) (*Handle, error) {
	if !runID.Valid() {
		return nil, domain.ErrPersist.WithDetailsf("snapshot: invalid run id %q", runID)
	}
	var records []domain.Record
	if snap != nil {
		records = snap.Records
	}

	tmp, res, err := s.writeTemp(s.archiveDir, records)
	if err != nil {
		return nil, domain.ErrPersist.WithDetails("snapshot: write snapshot").WithCause(err)
	}
	defer os.Remove(tmp)

	base := runID.Base()
	for seq := runID.Seq(); seq <= maxCollisionProbe; seq++ {
		id := base.WithSeq(seq)
		// A run id is taken once any of its artifacts exists.
		if s.runExists(id) {
			continue
		}
		final := filepath.Join(s.archiveDir, artifactFile(KindSnapshot, id))
		err := os.Link(tmp, final)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, domain.ErrPersist.WithDetails("snapshot: publish snapshot").WithCause(err)
		}
		syncDir(s.archiveDir)
		return &Handle{
			RunID:    id,
			Kind:     KindSnapshot,
			Path:     final,
			Rows:     res.rows,
			Size:     res.size,
			Checksum: res.checksum,
		}, nil
	}
	return nil, domain.ErrPersist.WithDetailsf("snapshot: no free sequence for run %s", base)
}

// ArchiveDelta writes the non-empty sides of delta under runID. A side with no
// records yields a nil handle and no file.
func (s *Store) ArchiveDelta(delta *domain.Delta, runID domain.RunID) (added, removed *Handle, err error) {
	if delta == nil {
		return nil, nil, nil
	}
	if !runID.Valid() {
		return nil, nil, domain.ErrPersist.WithDetailsf("snapshot: invalid run id %q", runID)
	}
	if len(delta.Added) > 0 {
		if added, err = s.publish(KindAdded, runID, delta.Added); err != nil {
			return nil, nil, err
		}
	}
	if len(delta.Removed) > 0 {
		if removed, err = s.publish(KindRemoved, runID, delta.Removed); err != nil {
			return added, nil, err
		}
	}
	return added, removed, nil
}

// publish writes records under a fixed name and fails if it already exists.
func (s *Store) publish(kind Kind, runID domain.RunID, records []domain.Record) (*Handle, error) {
	tmp, res, err := s.writeTemp(s.archiveDir, records)
	if err != nil {
		return nil, domain.ErrPersist.WithDetailsf("snapshot: write %s", kind).WithCause(err)
	}
	defer os.Remove(tmp)

	final := filepath.Join(s.archiveDir, artifactFile(kind, runID))
	if err := os.Link(tmp, final); err != nil {
		return nil, domain.ErrPersist.WithDetailsf("snapshot: publish %s", filepath.Base(final)).WithCause(err)
	}
	syncDir(s.archiveDir)
	return &Handle{
		RunID:    runID,
		Kind:     kind,
		Path:     final,
		Rows:     res.rows,
		Size:     res.size,
		Checksum: res.checksum,
	}, nil
}

// Discard removes artifacts published by a run that did not commit. Handles
// outside the archive directory are refused. A missing file is not an error.
func (s *Store) Discard(handles ...*Handle) error {
	var errs []error
	for _, h := range handles {
		if h == nil {
			continue
		}
		if filepath.Dir(h.Path) != s.archiveDir {
			errs = append(errs, fmt.Errorf("snapshot: discard %s: outside archive", h.Path))
			continue
		}
		if err := os.Remove(h.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("snapshot: discard %s: %w", h.Name(), err))
		}
	}
	syncDir(s.archiveDir)
	return errors.Join(errs...)
}

func (s *Store) runExists(id domain.RunID) bool {
	for _, k := range []Kind{KindSnapshot, KindAdded, KindRemoved} {
		if _, err := os.Lstat(filepath.Join(s.archiveDir, artifactFile(k, id))); err == nil {
			return true
		}
	}
	return false
}

// List returns archive entries grouped by run id, oldest first. Files that do
// not follow the artifact naming scheme are ignored.
func (s *Store) List() ([]ArchiveEntry, error) {
	dirEntries, err := os.ReadDir(s.archiveDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: list archive: %w", err)
	}

	byRun := make(map[domain.RunID]*ArchiveEntry)
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		m := artifactName.FindStringSubmatch(de.Name())
		if m == nil {
			continue
		}
		id := domain.RunID(m[2])
		if !id.Valid() {
			continue
		}
		e, ok := byRun[id]
		if !ok {
			e = &ArchiveEntry{RunID: id}
			byRun[id] = e
		}
		path := filepath.Join(s.archiveDir, de.Name())
		switch Kind(m[1]) {
		case KindSnapshot:
			e.Snapshot = path
		case KindAdded:
			e.Added = path
		case KindRemoved:
			e.Removed = path
		}
	}

	out := make([]ArchiveEntry, 0, len(byRun))
	for _, e := range byRun {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b ArchiveEntry) int {
		switch {
		case a.RunID.Less(b.RunID):
			return -1
		case b.RunID.Less(a.RunID):
			return 1
		}
		return 0
	})
	return out, nil
}

// Run returns the archive entry for id.
func (s *Store) Run(id domain.RunID) (*ArchiveEntry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].RunID == id {
			return &entries[i], nil
		}
	}
	return nil, domain.ErrRunNotFound.WithDetails(string(id))
}

// Prune removes every run older than the newest keep runs and returns the
// removed ids. keep <= 0 keeps everything. Leftover temp files are removed
// as well.
func (s *Store) Prune(keep int) ([]domain.RunID, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	s.removeStaleTemps()
	if keep <= 0 || len(entries) <= keep {
		return nil, nil
	}

	var removed []domain.RunID
	for _, e := range entries[:len(entries)-keep] {
		for _, p := range e.Paths() {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return removed, domain.ErrPersist.WithDetailsf("snapshot: prune %s", filepath.Base(p)).WithCause(err)
			}
		}
		removed = append(removed, e.RunID)
	}
	syncDir(s.archiveDir)
	return removed, nil
}

func (s *Store) removeStaleTemps() {
	for _, dir := range []string{s.dir, s.archiveDir} {
		des, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, de := range des {
			if !de.IsDir() && strings.HasPrefix(de.Name(), ".tmp-") {
				_ = os.Remove(filepath.Join(dir, de.Name()))
			}
		}
	}
}

// Stats summarizes the archive directory.
type Stats struct {
	Runs      int   `json:"runs"`
	Artifacts int   `json:"artifacts"`
	Bytes     int64 `json:"bytes"`
}

// Stats counts archived runs and artifacts and sums their sizes.
func (s *Store) Stats() (Stats, error) {
	entries, err := s.List()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Runs: len(entries)}
	for _, e := range entries {
		for _, p := range e.Paths() {
			fi, err := os.Stat(p)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return Stats{}, fmt.Errorf("snapshot: stat %s: %w", filepath.Base(p), err)
			}
			st.Artifacts++
			st.Bytes += fi.Size()
		}
	}
	return st, nil
}
