// Package gcs fetches archives from Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/soulprintco/imprint/pkg/objectstore"
)

// Fetcher streams objects out of a single GCS bucket.
type Fetcher struct {
	client *storage.Client
	bucket string
}

// NewFetcher builds a Fetcher over the given bucket. Credentials come from
// the ambient environment (GOOGLE_APPLICATION_CREDENTIALS or metadata
// server) unless extra options override them.
func NewFetcher(ctx context.Context, bucket string, opts ...option.ClientOption) (*Fetcher, error) {
	if bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	return &Fetcher{client: client, bucket: bucket}, nil
}

// Fetch opens a streaming reader on the object. The context must outlive the
// read: cancellation is tied to the returned reader's Close, not to Fetch
// returning.
func (f *Fetcher) Fetch(ctx context.Context, path string) (io.ReadCloser, error) {
	ctx2, cancel := context.WithCancel(ctx)

	r, err := f.client.Bucket(f.bucket).Object(path).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, classify(path, err)
	}

	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (f *Fetcher) Close() error {
	return f.client.Close()
}

// classify maps driver errors onto the objectstore error taxonomy so the
// pipeline can decide whether a job is retryable.
func classify(path string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return &objectstore.NotFoundError{Path: path}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return &objectstore.TransientError{Path: path, Err: err}
		}
		return fmt.Errorf("fetching %s: %w", path, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &objectstore.TransientError{Path: path, Err: err}
	}

	return fmt.Errorf("fetching %s: %w", path, err)
}

// readCloserWithCancel keeps the read context alive until the caller closes
// the reader.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (rc *readCloserWithCancel) Close() error {
	err := rc.ReadCloser.Close()
	rc.cancel()
	return err
}
