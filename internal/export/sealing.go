package export

import (
	"context"
	"fmt"
	"os"

	"github.com/yndnr/scrapedelta/pkg/seal"
)

// Sealing encrypts each artifact before handing it to the wrapped sink. The
// uploaded object name gets the seal.Extension suffix.
type Sealing struct {
	next   Sink
	sealer *seal.Sealer
}

// NewSealing wraps next.
func NewSealing(next Sink, sealer *seal.Sealer) *Sealing {
	return &Sealing{next: next, sealer: sealer}
}

// Export implements Sink.
func (s *Sealing) Export(ctx context.Context, artifactPath, logicalName string) error {
	plain, err := os.ReadFile(artifactPath) // #nosec G304 -- path comes from the store.
	if err != nil {
		return fmt.Errorf("export: read artifact: %w", err)
	}
	sealed, err := s.sealer.Seal(plain)
	if err != nil {
		return fmt.Errorf("export: seal: %w", err)
	}

	tmp, err := os.CreateTemp("", "scrapedelta-seal-*")
	if err != nil {
		return fmt.Errorf("export: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("export: write sealed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export: write sealed: %w", err)
	}
	return s.next.Export(ctx, tmp.Name(), logicalName+seal.Extension)
}
