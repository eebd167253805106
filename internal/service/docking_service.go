package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/insilica/dockgate/internal/chem"
	"github.com/insilica/dockgate/internal/domain"
	"github.com/insilica/dockgate/internal/events"
	"github.com/insilica/dockgate/internal/protein"
	"github.com/insilica/dockgate/internal/store"
)

// ProteinResolver maps a protein identifier to a local structure file,
// fetching and caching it if necessary.
type ProteinResolver interface {
	Resolve(ctx context.Context, proteinID string) (*protein.Record, error)
}

// DockingService provides the intake and status operations for docking
// jobs.
type DockingService interface {
	// StartDocking validates the request, resolves the protein
	// structure, persists a queued job, and announces it for dispatch
	// to the worker pool.
	StartDocking(ctx context.Context, proteinID, ligand, callbackURL string) (*domain.DockingJob, error)

	// GetJob retrieves a job by its ID.
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.DockingJob, error)
}

// dockingServiceImpl implements the DockingService interface.
type dockingServiceImpl struct {
	db           *sql.DB
	jobs         store.JobStore
	resolver     ProteinResolver
	eventEmitter events.EventEmitter
	maxAttempts  int
	logger       *slog.Logger
}

// NewDockingService creates a new DockingService.
// It returns an error if any of the required dependencies are nil.
func NewDockingService(
	db *sql.DB,
	jobs store.JobStore,
	resolver ProteinResolver,
	eventEmitter events.EventEmitter,
	maxAttempts int,
	logger *slog.Logger,
) (DockingService, error) {
	if db == nil {
		return nil, &DockingServiceError{
			Operation: "create_service",
			Message:   "db cannot be nil",
		}
	}
	if jobs == nil {
		return nil, &DockingServiceError{
			Operation: "create_service",
			Message:   "jobs cannot be nil",
		}
	}
	if resolver == nil {
		return nil, &DockingServiceError{
			Operation: "create_service",
			Message:   "resolver cannot be nil",
		}
	}
	if eventEmitter == nil {
		return nil, &DockingServiceError{
			Operation: "create_service",
			Message:   "eventEmitter cannot be nil",
		}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &dockingServiceImpl{
		db:           db,
		jobs:         jobs,
		resolver:     resolver,
		eventEmitter: eventEmitter,
		maxAttempts:  maxAttempts,
		logger:       logger.With("component", "docking_service"),
	}, nil
}

// StartDocking runs the intake workflow. The ligand is checked before
// any network work, and the protein structure is resolved before the
// job is accepted so a bad identifier is rejected synchronously rather
// than failing later on a GPU.
func (s *dockingServiceImpl) StartDocking(
	ctx context.Context,
	proteinID, ligand, callbackURL string,
) (*domain.DockingJob, error) {
	if err := chem.ValidateSMILES(ligand); err != nil {
		s.logger.Debug("rejected ligand descriptor",
			"protein_id", proteinID,
			"error", err)
		return nil, NewDockingServiceError("start_docking", "invalid ligand descriptor", err)
	}

	rec, err := s.resolver.Resolve(ctx, proteinID)
	if err != nil {
		s.logger.Warn("failed to resolve protein structure",
			"protein_id", proteinID,
			"error", err)
		return nil, NewDockingServiceError("start_docking", "failed to resolve protein structure", err)
	}

	job, err := domain.NewDockingJob(proteinID, ligand, callbackURL, s.maxAttempts)
	if err != nil {
		return nil, NewDockingServiceError("start_docking", "invalid docking request", err)
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return s.jobs.WithTx(tx).Save(ctx, job)
	})
	if err != nil {
		s.logger.Error("failed to persist docking job",
			"job_id", job.ID,
			"protein_id", proteinID,
			"error", err)
		return nil, NewDockingServiceError("start_docking", "failed to save job", err)
	}

	s.logger.Info("docking job accepted",
		"job_id", job.ID,
		"protein_id", proteinID,
		"protein_source", rec.Source)

	s.emitDockingRequested(ctx, job)

	return job, nil
}

// GetJob retrieves a job by its ID.
func (s *dockingServiceImpl) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.DockingJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, NewDockingServiceError("get_job", "failed to load job", err)
	}
	return job, nil
}

// emitDockingRequested publishes the intake event that carries the job
// to the dispatch handler. The row is already committed, so a failed
// emit never fails the request: recovery re-enqueues queued rows on the
// next start.
func (s *dockingServiceImpl) emitDockingRequested(ctx context.Context, job *domain.DockingJob) {
	payload := struct {
		JobID     uuid.UUID `json:"job_id"`
		ProteinID string    `json:"protein_id"`
	}{
		JobID:     job.ID,
		ProteinID: job.ProteinID,
	}

	event, err := events.NewJobEvent(events.EventTypeDockingRequested, payload)
	if err != nil {
		s.logger.Error("failed to create docking requested event",
			"job_id", job.ID,
			"error", err)
		return
	}

	if err := s.eventEmitter.EmitEvent(ctx, event); err != nil {
		s.logger.Warn("failed to dispatch accepted job, deferring to recovery",
			"job_id", job.ID,
			"error", err)
	}
}
