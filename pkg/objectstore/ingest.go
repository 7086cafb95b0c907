package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/soulprintco/imprint/pkg/llm"
)

// Ingestor stages remote archives into a local spool directory so later
// pipeline stages (and retries) stream from disk instead of re-downloading.
type Ingestor struct {
	fetcher    Fetcher
	stagingDir string
	logger     *zap.Logger

	// Backoff paces re-fetch attempts after transient object store
	// failures. Non-transient failures (missing objects) never retry.
	Backoff llm.BackoffPolicy
}

func NewIngestor(fetcher Fetcher, stagingDir string, logger *zap.Logger) (*Ingestor, error) {
	if stagingDir == "" {
		return nil, fmt.Errorf("staging directory is required")
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging dir: %w", err)
	}

	return &Ingestor{
		fetcher:    fetcher,
		stagingDir: stagingDir,
		logger:     logger,
		Backoff:    llm.DefaultBackoff,
	}, nil
}

// StagedPath returns where a job's archive is (or would be) staged.
func (i *Ingestor) StagedPath(jobID string) string {
	return filepath.Join(i.stagingDir, jobID+".json")
}

// IsStaged reports whether the job's archive has already been staged.
// Retried jobs skip the download when this is true.
func (i *Ingestor) IsStaged(jobID string) bool {
	info, err := os.Stat(i.StagedPath(jobID))
	return err == nil && info.Mode().IsRegular()
}

// Stage streams the object at path into the spool directory under the job
// id. Transient fetch failures retry with backoff up to the policy's cap;
// the copy goes through a temp file and a rename so a partially downloaded
// archive never looks staged.
func (i *Ingestor) Stage(ctx context.Context, jobID, path string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= i.Backoff.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := i.Backoff.Delay(attempt)
			i.logger.Warn("transient fetch failure, retrying",
				zap.String("job_id", jobID),
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		dst, err := i.stage(ctx, jobID, path)
		if err == nil {
			return dst, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return "", err
		}
	}

	return "", lastErr
}

func (i *Ingestor) stage(ctx context.Context, jobID, path string) (string, error) {
	src, err := i.fetcher.Fetch(ctx, path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(i.stagingDir, jobID+".partial-*")
	if err != nil {
		return "", fmt.Errorf("creating staging file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("staging %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing staging file: %w", err)
	}

	dst := i.StagedPath(jobID)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("finalizing staging file: %w", err)
	}

	i.logger.Info("staged archive",
		zap.String("job_id", jobID),
		zap.String("path", path),
		zap.Int64("bytes", written),
	)
	return dst, nil
}

// Open returns a reader over the staged archive.
func (i *Ingestor) Open(jobID string) (io.ReadCloser, error) {
	f, err := os.Open(i.StagedPath(jobID))
	if err != nil {
		return nil, fmt.Errorf("opening staged archive: %w", err)
	}
	return f, nil
}

// Remove deletes a job's staged archive. Missing files are not an error.
func (i *Ingestor) Remove(jobID string) error {
	err := os.Remove(i.StagedPath(jobID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing staged archive: %w", err)
	}
	return nil
}
