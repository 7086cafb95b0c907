// Package objectstore abstracts where exported archives live. Drivers expose
// a streaming Fetch so multi-gigabyte archives are never held in memory.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Fetcher opens archive objects for streaming reads.
type Fetcher interface {
	// Fetch opens the object at path. The caller owns the returned reader
	// and must close it.
	Fetch(ctx context.Context, path string) (io.ReadCloser, error)

	// Close releases driver resources.
	Close() error
}

// NotFoundError reports an object that does not exist. Not retryable: the
// job fails immediately.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object not found: %s", e.Path)
}

// TransientError wraps a fetch failure that a retry may recover from
// (network faults, service unavailability).
type TransientError struct {
	Path string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fetch failure for %s: %v", e.Path, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsTransient reports whether err is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
