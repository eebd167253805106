package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insilica/dockgate/internal/domain"
	"github.com/insilica/dockgate/internal/engine"
	"github.com/insilica/dockgate/internal/protein"
	"github.com/insilica/dockgate/internal/store"
)

// CallbackDispatcher delivers a terminal job to its callback URL. The
// webhook dispatcher implements it; the runner only needs this one
// method.
type CallbackDispatcher interface {
	Deliver(ctx context.Context, job *domain.DockingJob) error
}

// ProteinResolver maps a protein identifier to a local structure file.
// Intake resolves every protein before accepting a job, so calls from
// the runner normally hit the local cache.
type ProteinResolver interface {
	Resolve(ctx context.Context, proteinID string) (*protein.Record, error)
}

// RunnerConfig holds configuration for the worker pool runner.
type RunnerConfig struct {
	// AcceleratorCount determines how many workers run, one pinned to
	// each accelerator index.
	AcceleratorCount int

	// JobTimeout is the wall-clock budget for a single inference run.
	JobTimeout time.Duration

	// StuckDeliveryCheckInterval is how often the runner scans for
	// delivery sequences that stopped without recording an outcome.
	StuckDeliveryCheckInterval time.Duration

	// StuckDeliveryAge is how long a job may sit in the delivering
	// status before it is released for a fresh delivery sequence.
	StuckDeliveryAge time.Duration
}

// Runner owns the GPU worker pool: one long-lived worker goroutine per
// accelerator, each pulling jobs from the queue, driving the inference
// engine, and handing terminal jobs to the callback dispatcher.
type Runner struct {
	jobs       store.JobStore
	queue      *JobQueue
	resolver   ProteinResolver
	engine     engine.Engine
	dispatcher CallbackDispatcher
	slots      *SlotTable
	cfg        RunnerConfig
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewRunner creates a Runner. The accelerator count must be at least 1.
func NewRunner(
	jobs store.JobStore,
	queue *JobQueue,
	resolver ProteinResolver,
	eng engine.Engine,
	dispatcher CallbackDispatcher,
	cfg RunnerConfig,
	logger *slog.Logger,
) *Runner {
	if cfg.AcceleratorCount < 1 {
		logger.Warn("invalid accelerator count, using 1",
			"specified_count", cfg.AcceleratorCount)
		cfg.AcceleratorCount = 1
	}
	if cfg.StuckDeliveryCheckInterval <= 0 {
		cfg.StuckDeliveryCheckInterval = time.Minute
	}
	if cfg.StuckDeliveryAge <= 0 {
		cfg.StuckDeliveryAge = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		jobs:       jobs,
		queue:      queue,
		resolver:   resolver,
		engine:     eng,
		dispatcher: dispatcher,
		slots:      NewSlotTable(cfg.AcceleratorCount),
		cfg:        cfg,
		ctx:        ctx,
		cancelFunc: cancel,
		logger:     logger,
	}
}

// Slots exposes the slot table for status reporting.
func (r *Runner) Slots() *SlotTable {
	return r.slots
}

// Start recovers persisted jobs from a previous run and launches one
// worker per accelerator.
func (r *Runner) Start() error {
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	for i := 0; i < r.cfg.AcceleratorCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckDeliveryMonitor()

	r.logger.Info("worker pool started", "accelerator_count", r.cfg.AcceleratorCount)
	return nil
}

// Stop shuts the worker pool down. In-flight jobs are interrupted via
// context cancellation and will be recovered as queued on the next
// start.
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	r.queue.Close()
}

// Recover re-enqueues jobs left behind by a previous process: queued
// jobs lost their buffer slot in the crash, and running jobs were
// interrupted mid-inference. Both are redelivered, giving the broker
// its at-least-once semantics.
func (r *Runner) Recover() error {
	ctx := context.Background()

	queued, err := r.jobs.ListByState(ctx, domain.JobStateQueued)
	if err != nil {
		return fmt.Errorf("failed to list queued jobs: %w", err)
	}

	running, err := r.jobs.ListByState(ctx, domain.JobStateRunning)
	if err != nil {
		return fmt.Errorf("failed to list running jobs: %w", err)
	}

	r.logger.Info("recovering unfinished jobs",
		"queued_count", len(queued),
		"running_count", len(running))

	for _, job := range queued {
		if err := r.queue.Enqueue(job); err != nil {
			r.logger.Error("failed to requeue job during recovery",
				"job_id", job.ID, "error", err)
		}
	}

	for _, job := range running {
		// Reset to queued without consuming an attempt; the crash was
		// ours, not the job's.
		if err := r.jobs.Requeue(ctx, job.ID, job.Attempts, job.ErrorKind, "reset after restart"); err != nil {
			r.logger.Error("failed to reset interrupted job",
				"job_id", job.ID, "error", err)
			continue
		}
		job.State = domain.JobStateQueued
		if err := r.queue.Enqueue(job); err != nil {
			r.logger.Error("failed to requeue interrupted job",
				"job_id", job.ID, "error", err)
		}
	}

	return r.recoverDeliveries(ctx)
}

// recoverDeliveries replays callback delivery for terminal jobs
// stranded by a previous process: pending rows recorded their terminal
// state but never reached the dispatcher, and delivering rows were
// interrupted mid-sequence. The latter are released first so a fresh
// sequence can claim them.
func (r *Runner) recoverDeliveries(ctx context.Context) error {
	undelivered, err := r.jobs.ListUndelivered(ctx)
	if err != nil {
		return fmt.Errorf("failed to list undelivered jobs: %w", err)
	}

	// No sequence from a previous process can still be live, so every
	// delivering row is stranded regardless of age.
	interrupted, err := r.jobs.ListStuckDeliveries(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list interrupted deliveries: %w", err)
	}
	for _, job := range interrupted {
		released, err := r.jobs.ReleaseDelivery(ctx, job.ID)
		if err != nil {
			r.logger.Error("failed to release interrupted delivery",
				"job_id", job.ID, "error", err)
			continue
		}
		if released {
			undelivered = append(undelivered, job)
		}
	}

	if len(undelivered) == 0 {
		return nil
	}

	r.logger.Info("recovering stranded callback deliveries", "count", len(undelivered))
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		log := r.logger.With("component", "delivery_recovery")
		for _, job := range undelivered {
			select {
			case <-r.ctx.Done():
				return
			default:
			}
			r.deliver(r.ctx, job.ID, log.With("job_id", job.ID))
		}
	}()

	return nil
}

// stuckDeliveryMonitor periodically releases and replays deliveries
// that have sat in the delivering status past the configured age. A
// sequence that dies without recording an outcome, for example when the
// final status write fails, would otherwise strand its job forever.
func (r *Runner) stuckDeliveryMonitor() {
	defer r.wg.Done()

	log := r.logger.With("component", "stuck_delivery_monitor")
	ticker := time.NewTicker(r.cfg.StuckDeliveryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			stuck, err := r.jobs.ListStuckDeliveries(ctx, r.cfg.StuckDeliveryAge)
			if err != nil {
				log.Error("failed to check for stuck deliveries", "error", err)
				continue
			}

			for _, job := range stuck {
				released, err := r.jobs.ReleaseDelivery(ctx, job.ID)
				if err != nil {
					log.Error("failed to release stuck delivery",
						"job_id", job.ID, "error", err)
					continue
				}
				if !released {
					continue
				}
				log.Info("replaying stuck callback delivery", "job_id", job.ID)
				r.deliver(r.ctx, job.ID, log.With("job_id", job.ID))
			}
		}
	}
}

// worker is the pull loop for one accelerator.
func (r *Runner) worker(acceleratorIndex int) {
	defer r.wg.Done()

	log := r.logger.With("accelerator", acceleratorIndex)
	log.Debug("starting worker")

	for {
		select {
		case <-r.ctx.Done():
			log.Debug("stopping worker")
			return

		case job, ok := <-r.queue.GetChannel():
			if !ok {
				log.Debug("job queue closed, stopping worker")
				return
			}
			r.processJob(job, acceleratorIndex)
		}
	}
}

// processJob runs one job on one accelerator through to a terminal
// state or a transient re-enqueue. A panic anywhere inside is contained
// to this job.
func (r *Runner) processJob(job *domain.DockingJob, acceleratorIndex int) {
	ctx := r.ctx
	log := r.logger.With(
		"job_id", job.ID,
		"protein_id", job.ProteinID,
		"accelerator", acceleratorIndex,
	)

	defer func() {
		if p := recover(); p != nil {
			log.Error("panic while processing job", "panic", p)
			msg := fmt.Sprintf("worker panic: %v", p)
			if err := r.jobs.MarkFailed(ctx, job.ID, domain.ErrorKindInternal, msg); err != nil {
				log.Error("failed to record panic failure", "error", err)
			}
			r.slots.Release(acceleratorIndex)
			r.deliver(ctx, job.ID, log)
		}
	}()

	claimed, err := r.jobs.ClaimRunning(ctx, job.ID, acceleratorIndex)
	if err != nil {
		log.Error("failed to claim job", "error", err)
		return
	}
	if !claimed {
		// Redelivered job that another worker already claimed or
		// finished. Safe to drop here; delivery idempotence is handled
		// by the dispatcher.
		log.Debug("job no longer claimable, skipping")
		return
	}

	if err := r.slots.Claim(acceleratorIndex, job.ID); err != nil {
		log.Error("slot claim failed", "error", err)
	}
	defer r.slots.Release(acceleratorIndex)

	job.State = domain.JobStateRunning
	job.AssignedWorker = acceleratorIndex
	attempt := job.Attempts + 1
	log.Info("processing job", "attempt", attempt, "max_attempts", job.MaxAttempts)

	result, dockErr := r.runDock(job, acceleratorIndex)
	if dockErr == nil {
		log.Info("job succeeded", "result_ref", result.ResultRef, "score", result.Score)
		if err := r.jobs.MarkSucceeded(ctx, job.ID, result.ResultRef); err != nil {
			log.Error("failed to record success", "error", err)
			return
		}
		r.deliver(ctx, job.ID, log)
		return
	}

	if r.ctx.Err() != nil {
		// Shutdown cancelled the run mid-inference. Leave the row as
		// running so the next start resets it to queued without
		// consuming an attempt.
		log.Info("job interrupted by shutdown")
		return
	}

	kind, message := classifyDockError(dockErr)
	log.Warn("job attempt failed",
		"attempt", attempt,
		"error_kind", kind,
		"error", dockErr)

	if kind.Transient() && attempt < job.MaxAttempts {
		if err := r.jobs.Requeue(ctx, job.ID, attempt, kind, message); err != nil {
			log.Error("failed to requeue job", "error", err)
			return
		}
		job.State = domain.JobStateQueued
		job.Attempts = attempt
		if err := r.queue.Enqueue(job); err != nil {
			// The row stays queued in the store; recovery picks it up.
			log.Error("failed to re-enqueue job after transient failure", "error", err)
		}
		return
	}

	if err := r.jobs.MarkFailed(ctx, job.ID, kind, message); err != nil {
		log.Error("failed to record failure", "error", err)
		return
	}
	r.deliver(ctx, job.ID, log)
}

// runDock resolves the protein structure and drives one inference run
// under the per-job wall-clock budget.
func (r *Runner) runDock(job *domain.DockingJob, acceleratorIndex int) (*engine.DockResult, error) {
	runCtx, cancel := context.WithTimeout(r.ctx, r.cfg.JobTimeout)
	defer cancel()

	rec, err := r.resolver.Resolve(runCtx, job.ProteinID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve protein structure: %w", err)
	}

	result, err := r.engine.Dock(runCtx, engine.DockRequest{
		JobID:            job.ID,
		ProteinID:        job.ProteinID,
		ProteinPath:      rec.LocalPath,
		Ligand:           job.Ligand,
		AcceleratorIndex: acceleratorIndex,
	})
	if err != nil {
		if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, err
	}
	return result, nil
}

// deliver hands the terminal job to the callback dispatcher using its
// freshly persisted state.
func (r *Runner) deliver(ctx context.Context, jobID uuid.UUID, log *slog.Logger) {
	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		log.Error("failed to load job for delivery", "error", err)
		return
	}
	if err := r.dispatcher.Deliver(ctx, job); err != nil {
		log.Error("callback delivery failed", "error", err)
	}
}

// classifyDockError maps an engine error to the job error taxonomy:
// wall-clock timeouts and accelerator faults are transient, engine
// input rejections are fatal, anything unrecognized is internal.
func classifyDockError(err error) (domain.ErrorKind, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrorKindTimeout, "inference exceeded wall-clock budget"
	case errors.Is(err, engine.ErrTransient):
		return domain.ErrorKindAccelerator, err.Error()
	case errors.Is(err, engine.ErrFatal):
		return domain.ErrorKindEngine, err.Error()
	default:
		return domain.ErrorKindInternal, err.Error()
	}
}
