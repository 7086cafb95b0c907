package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soulprintco/imprint/pkg/store"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 64
)

// ErrQueueFull is returned when the job queue cannot accept another job.
var ErrQueueFull = fmt.Errorf("job queue is full")

// Handle tracks one queued job. Done closes when the run finishes; Err is
// valid after that.
type Handle struct {
	JobID string

	done chan struct{}
	err  error
}

// Done returns a channel closed when the job's run has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the run's outcome. Only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// RunnerConfig configures the job runner.
type RunnerConfig struct {
	Engine *Engine
	Store  store.Store

	// NumWorkers is the number of concurrent job runners.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job queue.
	QueueSize uint

	Logger *zap.Logger
}

// Runner owns the job queue and its worker goroutines. Jobs run one stage
// sequence each; concurrency across jobs comes from the worker count.
type Runner struct {
	engine *Engine
	store  store.Store
	queue  chan *Handle
	wg     sync.WaitGroup
	logger *zap.Logger

	closeOnce sync.Once
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("runner: engine is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("runner: store is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("runner: logger is required")
	}
	if cfg.NumWorkers == 0 {
		cfg.NumWorkers = defaultNumWorkers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaultJobQueueSize
	}

	r := &Runner{
		engine: cfg.Engine,
		store:  cfg.Store,
		queue:  make(chan *Handle, cfg.QueueSize),
		logger: cfg.Logger,
	}

	r.wg.Add(int(cfg.NumWorkers))
	for i := uint(0); i < cfg.NumWorkers; i++ {
		go r.worker(i)
	}

	return r, nil
}

// Enqueue creates a job for the archive at storagePath and queues it.
func (r *Runner) Enqueue(ctx context.Context, userID, storagePath string) (*Handle, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if storagePath == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	job := &store.Job{
		ID:          uuid.NewString(),
		UserID:      userID,
		StoragePath: storagePath,
		Stage:       store.StageIngest,
		Status:      store.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	handle, err := r.push(job)
	if err != nil {
		r.rejectJob(ctx, job, err)
		return nil, err
	}
	return handle, nil
}

// Retry re-queues a failed job. The run resumes from the job's last
// completed checkpoint.
func (r *Runner) Retry(ctx context.Context, jobID string) (*Handle, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != store.StatusFailed {
		return nil, fmt.Errorf("job %s is %s, only failed jobs can be retried", jobID, job.Status)
	}

	job.Status = store.StatusPending
	job.Error = ""
	job.CompletedAt = nil
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	handle, err := r.push(job)
	if err != nil {
		r.rejectJob(ctx, job, err)
		return nil, err
	}
	return handle, nil
}

// rejectJob marks a job the queue could not accept as failed so it never
// sits pending forever and stays eligible for Retry.
func (r *Runner) rejectJob(ctx context.Context, job *store.Job, cause error) {
	now := time.Now().UTC()
	job.Status = store.StatusFailed
	job.Error = cause.Error()
	job.CompletedAt = &now
	if err := r.store.UpdateJob(ctx, job); err != nil {
		r.logger.Error("persisting queue-rejected job",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

func (r *Runner) push(job *store.Job) (*Handle, error) {
	handle := &Handle{JobID: job.ID, done: make(chan struct{})}
	select {
	case r.queue <- handle:
		r.logger.Debug("job queued",
			zap.String("job_id", job.ID),
			zap.String("user_id", job.UserID),
		)
		return handle, nil
	default:
		return nil, ErrQueueFull
	}
}

// Close stops accepting jobs and waits for in-flight runs to drain.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
}

func (r *Runner) worker(id uint) {
	defer r.wg.Done()

	log := r.logger.With(zap.Uint("worker", id))
	for handle := range r.queue {
		err := r.engine.Run(context.Background(), handle.JobID)
		if err != nil {
			log.Error("job run failed",
				zap.String("job_id", handle.JobID),
				zap.Error(err),
			)
		}
		handle.err = err
		close(handle.done)
	}
}
