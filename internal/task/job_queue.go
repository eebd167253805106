package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/insilica/dockgate/internal/domain"
)

// Common errors returned by the JobQueue
var (
	ErrQueueClosed = errors.New("job queue is closed")
	ErrQueueFull   = errors.New("job queue is full")
)

// JobQueue is the buffered hand-off between the intake path and the
// worker pool. Jobs placed here are already persisted; losing the
// buffer (process crash) only costs the in-memory copy, which recovery
// re-enqueues from the store.
type JobQueue struct {
	jobs   chan *domain.DockingJob
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

// NewJobQueue creates a new job queue with the specified buffer size.
func NewJobQueue(size int, logger *slog.Logger) *JobQueue {
	return &JobQueue{
		jobs:   make(chan *domain.DockingJob, size),
		logger: logger,
	}
}

// Enqueue adds a job to the queue for processing.
// Returns an error if the queue is full or closed.
func (q *JobQueue) Enqueue(job *domain.DockingJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.logger.Debug("job enqueued",
			"job_id", job.ID,
			"protein_id", job.ProteinID,
			"queue_len", len(q.jobs),
			"queue_cap", cap(q.jobs))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

// Close closes the job queue, preventing further job submission.
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
		q.logger.Info("job queue closed")
	}
}

// GetChannel returns a read-only channel for consuming jobs.
func (q *JobQueue) GetChannel() <-chan *domain.DockingJob {
	return q.jobs
}
