package logger

import (
	"fmt"
	"os"
	"path/filepath"
)

// RunLogFile is the log file kept in the output directory.
const RunLogFile = "run.log"

// OpenRunLog opens <dir>/run.log for appending, creating dir if needed.
func OpenRunLog(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	path := filepath.Join(dir, RunLogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) // #nosec G304 -- operator configured output dir.
	if err != nil {
		return nil, fmt.Errorf("logger: open run log: %w", err)
	}
	return f, nil
}
