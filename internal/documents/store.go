// Package documents reads the markdown documents served by the tools.
package documents

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when a document file does not exist.
var ErrNotFound = errors.New("document not found")

// Document is one markdown file.
type Document struct {
	Name      string
	Content   string
	Size      int64
	UpdatedAt time.Time
}

// Store reads documents from a single directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: filepath.Clean(dir)}
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Read loads the named document. Names are plain file names; paths that
// would leave the root directory are rejected.
func (s *Store) Read(ctx context.Context, name string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	path, err := s.resolve(name)
	if err != nil {
		return Document{}, err
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	case err != nil:
		return Document{}, fmt.Errorf("reading document %s: %w", name, err)
	case info.IsDir():
		return Document{}, fmt.Errorf("%w: %s is a directory", ErrNotFound, name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading document %s: %w", name, err)
	}

	return Document{
		Name:      name,
		Content:   string(data),
		Size:      info.Size(),
		UpdatedAt: info.ModTime().UTC(),
	}, nil
}

// Ready reports an error naming every missing document.
func (s *Store) Ready(_ context.Context, names ...string) error {
	missing := make([]string, 0)
	for _, name := range names {
		path, err := s.resolve(name)
		if err != nil {
			return err
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("document files missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (s *Store) resolve(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed != filepath.Base(trimmed) || trimmed == "." || trimmed == ".." {
		return "", fmt.Errorf("invalid document name %q", name)
	}
	return filepath.Join(s.dir, trimmed), nil
}
