package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vdavid/mailvault/internal/mail"
)

const dateLayout = "20060102"

// Filesystem writes artifacts under a base directory, grouped into one
// subdirectory per send day. The storage point it reports is the
// absolute dated directory, so a file record alone is enough to locate
// the artifact.
type Filesystem struct {
	baseDir string
	now     func() time.Time
}

// NewFilesystem creates a filesystem sink rooted at baseDir. The directory
// is created on first write, not here.
func NewFilesystem(baseDir string) (*Filesystem, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sink directory %q: %w", baseDir, err)
	}
	return &Filesystem{baseDir: abs, now: time.Now}, nil
}

func (f *Filesystem) Name() string {
	return "file_system"
}

func (f *Filesystem) Write(ctx context.Context, id mail.Identity, artifact mail.Artifact, sentAt time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	day := sentAt
	if day.IsZero() {
		day = f.now()
	}
	dir := filepath.Join(f.baseDir, day.Format(dateLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create sink directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, artifact.Fogname)
	if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return dir, nil
}
