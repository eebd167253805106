package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/insilica/dockgate/internal/config"
	"github.com/insilica/dockgate/internal/engine"
	"github.com/insilica/dockgate/internal/events"
	"github.com/insilica/dockgate/internal/platform/postgres"
	"github.com/insilica/dockgate/internal/protein"
	"github.com/insilica/dockgate/internal/service"
	"github.com/insilica/dockgate/internal/store"
	"github.com/insilica/dockgate/internal/task"
	"github.com/insilica/dockgate/internal/webhook"
)

// JobDispatchEventHandler submits accepted docking jobs to the worker
// queue when the intake service announces them.
type JobDispatchEventHandler struct {
	jobs   store.JobStore
	queue  *task.JobQueue
	logger *slog.Logger
}

// HandleEvent processes docking request events by loading the persisted
// job and handing it to the queue.
func (h *JobDispatchEventHandler) HandleEvent(
	ctx context.Context,
	event *events.JobEvent,
) error {
	if event.Type != events.EventTypeDockingRequested {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var payload struct {
		JobID string `json:"job_id"`
	}
	if err := event.UnmarshalPayload(&payload); err != nil {
		h.logger.Error("failed to unmarshal payload",
			"error", err,
			"event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		h.logger.Error("invalid job ID in event payload",
			"error", err,
			"job_id", payload.JobID,
			"event_id", event.ID)
		return fmt.Errorf("invalid job ID: %w", err)
	}

	job, err := h.jobs.GetByID(ctx, jobID)
	if err != nil {
		h.logger.Error("failed to load job for dispatch",
			"error", err,
			"job_id", jobID)
		return fmt.Errorf("failed to load job for dispatch: %w", err)
	}

	if err := h.queue.Enqueue(job); err != nil {
		if errors.Is(err, task.ErrQueueFull) {
			// The row is committed, so a full buffer is not fatal:
			// recovery re-enqueues queued rows on the next start.
			h.logger.Warn("queue full, deferring job to recovery", "job_id", jobID)
			return nil
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	h.logger.Debug("job dispatched to worker queue", "job_id", jobID)
	return nil
}

// application holds the wired-together components of the server.
type application struct {
	config         *config.Config
	logger         *slog.Logger
	db             *sql.DB
	resolver       *protein.Resolver
	queue          *task.JobQueue
	runner         *task.Runner
	dockingService service.DockingService
}

// newApplication builds the full dependency graph: database, protein
// resolver, inference engine, worker pool, callback dispatcher, and
// the intake service.
func newApplication(cfg *config.Config, appLogger *slog.Logger) (*application, error) {
	db, err := setupAppDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	if err := applyMigrations(db, appLogger); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	jobStore := postgres.NewPostgresJobStore(db)

	resolver, err := protein.NewResolver(cfg.Protein, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create protein resolver: %w", err)
	}

	diffdock, err := engine.NewDiffDock(cfg.Engine, cfg.Worker.ResultsDir, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference engine: %w", err)
	}

	dispatcher := webhook.NewDispatcher(jobStore, cfg.Callback, appLogger)

	queue := task.NewJobQueue(cfg.Worker.QueueSize, appLogger)
	runner := task.NewRunner(jobStore, queue, resolver, diffdock, dispatcher, task.RunnerConfig{
		AcceleratorCount:           cfg.Worker.AcceleratorCount,
		JobTimeout:                 cfg.Worker.JobTimeout,
		StuckDeliveryCheckInterval: cfg.Worker.StuckDeliveryCheckInterval,
		StuckDeliveryAge:           cfg.Worker.StuckDeliveryAge,
	}, appLogger)

	emitter := events.NewInMemoryEventEmitter(appLogger)
	emitter.RegisterHandler(&JobDispatchEventHandler{
		jobs:   jobStore,
		queue:  queue,
		logger: appLogger.With("component", "job_dispatch_event_handler"),
	})

	dockingService, err := service.NewDockingService(
		db,
		jobStore,
		resolver,
		emitter,
		cfg.Worker.MaxJobAttempts,
		appLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docking service: %w", err)
	}

	return &application{
		config:         cfg,
		logger:         appLogger,
		db:             db,
		resolver:       resolver,
		queue:          queue,
		runner:         runner,
		dockingService: dockingService,
	}, nil
}

// run starts the worker pool and serves HTTP until shutdown.
func (app *application) run() error {
	if err := app.runner.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	var router http.Handler = app.setupRouter()
	return app.startHTTPServer(router)
}

// cleanup releases application resources in reverse dependency order.
func (app *application) cleanup() {
	app.runner.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("Failed to close database connection", "error", err)
	}
}
