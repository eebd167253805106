package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/insilica/dockgate/internal/domain"
)

// JobStore defines the interface for docking job persistence. A job row
// is the durable half of the at-least-once hand-off: it outlives queue
// and process restarts until a terminal state is recorded, and the
// compare-and-swap style claim methods make redelivered jobs safe to
// process.
type JobStore interface {
	// Save persists a newly created job.
	// Returns ErrDuplicate if the job ID already exists.
	Save(ctx context.Context, job *domain.DockingJob) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DockingJob, error)

	// ClaimRunning transitions a job from queued to running and records
	// the claiming worker's accelerator index. It only succeeds when
	// the job is still queued, so a redelivered job that has already
	// been claimed or finished elsewhere reports false.
	ClaimRunning(ctx context.Context, id uuid.UUID, workerIndex int) (bool, error)

	// Requeue moves a running job back to queued with the given attempt
	// count, recording the failure that caused the retry.
	Requeue(ctx context.Context, id uuid.UUID, attempts int, kind domain.ErrorKind, message string) error

	// MarkSucceeded records the terminal succeeded state and the result
	// artifact reference.
	MarkSucceeded(ctx context.Context, id uuid.UUID, resultRef string) error

	// MarkFailed records the terminal failed state with the failure
	// classification and message.
	MarkFailed(ctx context.Context, id uuid.UUID, kind domain.ErrorKind, message string) error

	// ClaimDelivery transitions the job's delivery status from pending
	// to delivering. It reports false when another delivery sequence
	// has already claimed or finished the job, which keeps callback
	// delivery at-most-once under broker redelivery.
	ClaimDelivery(ctx context.Context, id uuid.UUID) (bool, error)

	// FinishDelivery records the terminal delivery outcome (delivered
	// or delivery_failed) and the number of delivery attempts made.
	FinishDelivery(ctx context.Context, id uuid.UUID, status domain.DeliveryStatus, attempts int) error

	// ListByState returns all jobs currently in the given state, oldest
	// first. Used at startup to recover queued and interrupted jobs.
	ListByState(ctx context.Context, state domain.JobState) ([]*domain.DockingJob, error)

	// ListUndelivered returns terminal jobs whose callback delivery is
	// still pending, oldest first. Used at startup to replay deliveries
	// stranded by a crash between the terminal write and the dispatch.
	ListUndelivered(ctx context.Context) ([]*domain.DockingJob, error)

	// ListStuckDeliveries returns terminal jobs that have sat in the
	// delivering status for at least the given age, oldest first. A
	// delivery sequence that died without calling FinishDelivery leaves
	// the job in that status indefinitely.
	ListStuckDeliveries(ctx context.Context, age time.Duration) ([]*domain.DockingJob, error)

	// ReleaseDelivery returns a job's delivery status from delivering
	// to pending so a fresh sequence can claim it. Reports false when
	// the job is no longer delivering.
	ReleaseDelivery(ctx context.Context, id uuid.UUID) (bool, error)

	// WithTx returns a JobStore bound to the provided transaction.
	WithTx(tx *sql.Tx) JobStore
}
