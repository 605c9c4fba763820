package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/scrapedelta/internal/core/domain"
)

const (
	LatestFile        = "latest.csv"
	ArchiveDir        = "archive"
	DefaultFPColumn   = "hash"
	fileExtension     = ".csv"
	tempPattern       = ".tmp-*"
	dirPerm           = 0o750
	filePerm          = 0o640
	maxCollisionProbe = 9999
)

// Config configures the store.
type Config struct {
	// Dir is the output directory holding latest.csv and archive/.
	Dir string
	// Fields is the preferred column order of written artifacts.
	Fields []string
	// HashFields are used to recompute fingerprints for artifacts without a
	// fingerprint column. Defaults to fingerprint.DefaultKeys.
	HashFields []string
	// FingerprintColumn defaults to "hash".
	FingerprintColumn string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store is the sole reader and writer of archive state.
type Store struct {
	dir        string
	archiveDir string
	codec      Codec
	log        *slog.Logger
}

// NewStore creates the output and archive directories if needed.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, domain.ErrConfig.WithDetails("snapshot: output dir is required")
	}

	archiveDir := filepath.Join(cfg.Dir, ArchiveDir)
	if err := os.MkdirAll(archiveDir, dirPerm); err != nil {
		return nil, domain.ErrPersist.WithDetails("snapshot: create archive dir").WithCause(err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		dir:        cfg.Dir,
		archiveDir: archiveDir,
		codec:      NewCodec(cfg),
		log:        log.With("component", "snapshot"),
	}, nil
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

// ArchivePath returns the archive directory.
func (s *Store) ArchivePath() string { return s.archiveDir }

// LatestPath returns the path of latest.csv.
func (s *Store) LatestPath() string { return filepath.Join(s.dir, LatestFile) }

// LoadLatest returns the baseline snapshot: latest.csv, or failing that the
// newest archived snapshot. found is false when neither exists; that is not
// an error and callers treat it as an empty baseline. A blank latest.csv, as
// left by an interrupted external writer, is an empty baseline as well.
func (s *Store) LoadLatest() (snap *domain.Snapshot, found bool, err error) {
	path := s.LatestPath()
	st, err := os.Stat(path)
	switch {
	case err == nil:
		if blank, err := isBlank(path, st); err != nil {
			return nil, false, fmt.Errorf("snapshot: read latest: %w", err)
		} else if blank {
			s.log.Warn("latest.csv is empty, using an empty baseline", "path", path, "size", st.Size())
			return &domain.Snapshot{TakenAt: st.ModTime()}, true, nil
		}
		records, err := s.ReadArtifact(path)
		if err != nil {
			return nil, false, err
		}
		return &domain.Snapshot{Records: records, TakenAt: st.ModTime()}, true, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, false, fmt.Errorf("snapshot: stat latest: %w", err)
	}

	entries, err := s.List()
	if err != nil {
		return nil, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Snapshot == "" {
			continue
		}
		records, err := s.ReadArtifact(e.Snapshot)
		if err != nil {
			return nil, false, err
		}
		takenAt, _ := e.RunID.Time()
		return &domain.Snapshot{Records: records, TakenAt: takenAt}, true, nil
	}
	return nil, false, nil
}

// blankLimit bounds the size of a file that can still be blank.
const blankLimit = 64

// isBlank reports whether path holds nothing but whitespace and a BOM.
func isBlank(path string, st fs.FileInfo) (bool, error) {
	if st.Size() == 0 {
		return true, nil
	}
	if st.Size() > blankLimit {
		return false, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- store-owned path.
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(strings.TrimPrefix(string(data), "\uFEFF")) == "", nil
}

// SaveLatest atomically replaces latest.csv with snap.
func (s *Store) SaveLatest(snap *domain.Snapshot) error {
	var records []domain.Record
	if snap != nil {
		records = snap.Records
	}

	tmp, _, err := s.writeTemp(s.dir, records)
	if err != nil {
		return domain.ErrPersist.WithDetails("snapshot: write latest").WithCause(err)
	}
	defer os.Remove(tmp)

	if err := os.Rename(tmp, s.LatestPath()); err != nil {
		return domain.ErrPersist.WithDetails("snapshot: replace latest").WithCause(err)
	}
	syncDir(s.dir)
	return nil
}

// ReadArtifact reads any artifact written by the store, or a compatible CSV
// file, back into records.
func (s *Store) ReadArtifact(path string) ([]domain.Record, error) {
	return s.codec.ReadFile(path)
}

// Codec returns the store's CSV codec.
func (s *Store) Codec() Codec { return s.codec }

type tempResult struct {
	rows     int
	size     int64
	checksum string
}

// writeTemp encodes records into a synced temp file in dir.
func (s *Store) writeTemp(dir string, records []domain.Record) (string, tempResult, error) {
	var res tempResult

	file, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return "", res, fmt.Errorf("create temp file: %w", err)
	}
	path := file.Name()
	fail := func(err error) (string, tempResult, error) {
		file.Close()
		os.Remove(path)
		return "", res, err
	}

	if err := file.Chmod(filePerm); err != nil {
		return fail(fmt.Errorf("chmod: %w", err))
	}

	hash := sha256.New()
	cw := &countingWriter{w: io.MultiWriter(file, hash)}
	rows, err := s.codec.Encode(cw, records)
	if err != nil {
		return fail(err)
	}
	if err := file.Sync(); err != nil {
		return fail(fmt.Errorf("sync: %w", err))
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", res, fmt.Errorf("close: %w", err)
	}

	res.rows = rows
	res.size = cw.n
	res.checksum = hex.EncodeToString(hash.Sum(nil))
	return path, res, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// syncDir makes a rename or link durable. Failure is ignored: not every
// platform supports fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
