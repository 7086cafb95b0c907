// Package local fetches archives from a directory on disk. Used for
// development and tests; the path semantics mirror the gcs driver with the
// configured root standing in for the bucket.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/soulprintco/imprint/pkg/objectstore"
)

// Fetcher serves objects relative to a root directory.
type Fetcher struct {
	root string
}

func NewFetcher(root string) (*Fetcher, error) {
	if root == "" {
		return nil, errors.New("local: root directory is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	return &Fetcher{root: abs}, nil
}

func (f *Fetcher) Fetch(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := filepath.Join(f.root, filepath.Clean("/"+path))
	if !strings.HasPrefix(full, f.root) {
		return nil, fmt.Errorf("path %q escapes object root", path)
	}

	file, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &objectstore.NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return file, nil
}

func (f *Fetcher) Close() error { return nil }
