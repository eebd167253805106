package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/insilica/dockgate/internal/domain"
	"github.com/insilica/dockgate/internal/platform/logger"
	"github.com/insilica/dockgate/internal/store"
)

// PostgresJobStore implements the store.JobStore interface using PostgreSQL.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// WithTx returns a JobStore bound to the provided transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{db: tx}
}

const jobColumns = `id, protein_id, ligand, callback_url, state, attempts, max_attempts,
	assigned_worker, result_ref, error_kind, error_message,
	delivery_status, delivery_attempts, created_at, updated_at`

// Save persists a newly created job.
func (s *PostgresJobStore) Save(ctx context.Context, job *domain.DockingJob) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO docking_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.ProteinID,
		job.Ligand,
		job.CallbackURL,
		job.State,
		job.Attempts,
		job.MaxAttempts,
		job.AssignedWorker,
		nullString(job.ResultRef),
		nullString(string(job.ErrorKind)),
		nullString(job.ErrorMessage),
		job.DeliveryStatus,
		job.DeliveryAttempts,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save docking job",
			"job_id", job.ID,
			"protein_id", job.ProteinID,
			"error", err)
		return fmt.Errorf("failed to save docking job: %w", MapError(err))
	}

	return nil
}

// GetByID retrieves a job by its unique ID.
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.DockingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM docking_jobs WHERE id = $1`

	row := s.db.QueryRowContext(ctx, query, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(MapError(err), store.ErrNotFound) {
			return nil, store.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get docking job: %w", MapError(err))
	}
	return job, nil
}

// ClaimRunning transitions a job from queued to running. The state
// predicate makes the claim idempotent under redelivery: only one
// worker can move a given queued job to running.
func (s *PostgresJobStore) ClaimRunning(ctx context.Context, id uuid.UUID, workerIndex int) (bool, error) {
	query := `
		UPDATE docking_jobs
		SET state = $1, assigned_worker = $2, updated_at = $3
		WHERE id = $4 AND state = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStateRunning, workerIndex, time.Now().UTC(), id, domain.JobStateQueued)
	if err != nil {
		return false, fmt.Errorf("failed to claim docking job: %w", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim docking job: %w", err)
	}
	return affected == 1, nil
}

// Requeue moves a running job back to queued with the given attempt count.
func (s *PostgresJobStore) Requeue(ctx context.Context, id uuid.UUID, attempts int, kind domain.ErrorKind, message string) error {
	query := `
		UPDATE docking_jobs
		SET state = $1, attempts = $2, error_kind = $3, error_message = $4, updated_at = $5
		WHERE id = $6
	`

	return s.execExpectingRow(ctx, query,
		domain.JobStateQueued, attempts, string(kind), message, time.Now().UTC(), id)
}

// MarkSucceeded records the terminal succeeded state and result reference.
func (s *PostgresJobStore) MarkSucceeded(ctx context.Context, id uuid.UUID, resultRef string) error {
	query := `
		UPDATE docking_jobs
		SET state = $1, result_ref = $2, error_kind = NULL, error_message = NULL, updated_at = $3
		WHERE id = $4
	`

	return s.execExpectingRow(ctx, query,
		domain.JobStateSucceeded, resultRef, time.Now().UTC(), id)
}

// MarkFailed records the terminal failed state with its classification.
func (s *PostgresJobStore) MarkFailed(ctx context.Context, id uuid.UUID, kind domain.ErrorKind, message string) error {
	query := `
		UPDATE docking_jobs
		SET state = $1, error_kind = $2, error_message = $3, updated_at = $4
		WHERE id = $5
	`

	return s.execExpectingRow(ctx, query,
		domain.JobStateFailed, string(kind), message, time.Now().UTC(), id)
}

// ClaimDelivery transitions delivery status pending -> delivering.
// Reports false when some delivery sequence already owns the job.
func (s *PostgresJobStore) ClaimDelivery(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE docking_jobs
		SET delivery_status = $1, updated_at = $2
		WHERE id = $3 AND delivery_status = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.DeliveryInFlight, time.Now().UTC(), id, domain.DeliveryPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim callback delivery: %w", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim callback delivery: %w", err)
	}
	return affected == 1, nil
}

// FinishDelivery records the terminal delivery outcome.
func (s *PostgresJobStore) FinishDelivery(ctx context.Context, id uuid.UUID, status domain.DeliveryStatus, attempts int) error {
	query := `
		UPDATE docking_jobs
		SET delivery_status = $1, delivery_attempts = $2, updated_at = $3
		WHERE id = $4
	`

	return s.execExpectingRow(ctx, query, status, attempts, time.Now().UTC(), id)
}

// ListByState returns all jobs in the given state, oldest first.
func (s *PostgresJobStore) ListByState(ctx context.Context, state domain.JobState) ([]*domain.DockingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM docking_jobs WHERE state = $1 ORDER BY created_at`
	return s.listJobs(ctx, query, state)
}

// ListUndelivered returns terminal jobs whose callback delivery is
// still pending, oldest first.
func (s *PostgresJobStore) ListUndelivered(ctx context.Context) ([]*domain.DockingJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM docking_jobs
		WHERE state IN ($1, $2) AND delivery_status = $3
		ORDER BY created_at
	`
	return s.listJobs(ctx, query,
		domain.JobStateSucceeded, domain.JobStateFailed, domain.DeliveryPending)
}

// ListStuckDeliveries returns terminal jobs stuck in the delivering
// status for at least the given age, oldest first.
func (s *PostgresJobStore) ListStuckDeliveries(ctx context.Context, age time.Duration) ([]*domain.DockingJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM docking_jobs
		WHERE state IN ($1, $2) AND delivery_status = $3 AND updated_at <= $4
		ORDER BY created_at
	`
	cutoff := time.Now().UTC().Add(-age)
	return s.listJobs(ctx, query,
		domain.JobStateSucceeded, domain.JobStateFailed, domain.DeliveryInFlight, cutoff)
}

// ReleaseDelivery moves a job's delivery status from delivering back to
// pending. The status predicate mirrors ClaimDelivery: only a job whose
// sequence recorded no outcome can be released.
func (s *PostgresJobStore) ReleaseDelivery(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE docking_jobs
		SET delivery_status = $1, updated_at = $2
		WHERE id = $3 AND delivery_status = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.DeliveryPending, time.Now().UTC(), id, domain.DeliveryInFlight)
	if err != nil {
		return false, fmt.Errorf("failed to release callback delivery: %w", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to release callback delivery: %w", err)
	}
	return affected == 1, nil
}

func (s *PostgresJobStore) listJobs(ctx context.Context, query string, args ...any) ([]*domain.DockingJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list docking jobs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.DockingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan docking job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list docking jobs: %w", MapError(err))
	}

	return jobs, nil
}

// execExpectingRow runs an update that must affect exactly one row,
// mapping "no such job" to store.ErrJobNotFound.
func (s *PostgresJobStore) execExpectingRow(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update docking job: %w", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update docking job: %w", err)
	}
	if affected == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.DockingJob, error) {
	var (
		job       domain.DockingJob
		resultRef sql.NullString
		errKind   sql.NullString
		errMsg    sql.NullString
	)

	err := row.Scan(
		&job.ID,
		&job.ProteinID,
		&job.Ligand,
		&job.CallbackURL,
		&job.State,
		&job.Attempts,
		&job.MaxAttempts,
		&job.AssignedWorker,
		&resultRef,
		&errKind,
		&errMsg,
		&job.DeliveryStatus,
		&job.DeliveryAttempts,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.ResultRef = resultRef.String
	job.ErrorKind = domain.ErrorKind(errKind.String)
	job.ErrorMessage = errMsg.String
	return &job, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
