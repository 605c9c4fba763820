package domain

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunIDLayout is the UTC timestamp layout of a run id.
const RunIDLayout = "20060102_150405"

// RunID addresses one run's artifacts in the archive: the UTC start time in
// RunIDLayout, optionally followed by a "-NNNN" collision suffix.
type RunID string

// NewRunID returns the run id for a run started at t.
func NewRunID(t time.Time) RunID {
	return RunID(t.UTC().Format(RunIDLayout))
}

// WithSeq returns the id disambiguated by sequence number seq (seq >= 2).
func (id RunID) WithSeq(seq int) RunID {
	if seq <= 1 {
		return id.Base()
	}
	return RunID(fmt.Sprintf("%s-%04d", id.Base(), seq))
}

// Base strips any collision suffix.
func (id RunID) Base() RunID {
	if i := strings.IndexByte(string(id), '-'); i >= 0 {
		return id[:i]
	}
	return id
}

// Seq returns the collision sequence, 1 when unsuffixed.
func (id RunID) Seq() int {
	i := strings.IndexByte(string(id), '-')
	if i < 0 {
		return 1
	}
	n, err := strconv.Atoi(string(id[i+1:]))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Time parses the timestamp part of the id.
func (id RunID) Time() (time.Time, error) {
	return time.ParseInLocation(RunIDLayout, string(id.Base()), time.UTC)
}

// Valid reports whether id is well formed.
func (id RunID) Valid() bool {
	if _, err := id.Time(); err != nil {
		return false
	}
	if i := strings.IndexByte(string(id), '-'); i >= 0 {
		n, err := strconv.Atoi(string(id[i+1:]))
		return err == nil && n >= 2 && len(id)-i-1 == 4
	}
	return true
}

// Less orders run ids chronologically, then by sequence.
func (id RunID) Less(other RunID) bool {
	if id.Base() != other.Base() {
		return id.Base() < other.Base()
	}
	return id.Seq() < other.Seq()
}

func (id RunID) String() string {
	return string(id)
}

// RunState is a run orchestrator state.
type RunState string

const (
	StateFetching   RunState = "FETCHING"
	StateHashing    RunState = "HASHING"
	StateDiffing    RunState = "DIFFING"
	StatePersisting RunState = "PERSISTING"
	StateExporting  RunState = "EXPORTING"
	StateDone       RunState = "DONE"
	StateFailed     RunState = "FAILED"
)

// IsTerminal reports whether s ends a run.
func (s RunState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

var (
	traceMu      sync.Mutex
	traceEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewTraceID returns a lowercase ULID correlating every log line of one run.
func NewTraceID() string {
	traceMu.Lock()
	defer traceMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), traceEntropy)
	if err != nil {
		// Entropy exhaustion within one millisecond; fall back to a fresh reader.
		id = ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	}
	return strings.ToLower(id.String())
}
