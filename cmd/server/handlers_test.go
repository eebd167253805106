package main

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insilica/dockgate/internal/domain"
	"github.com/insilica/dockgate/internal/events"
	"github.com/insilica/dockgate/internal/mocks"
	"github.com/insilica/dockgate/internal/task"
)

func handlerTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func dispatchTestJob(t *testing.T, jobs *mocks.MockJobStore) *domain.DockingJob {
	t.Helper()
	job, err := domain.NewDockingJob("P69905", "CCO", "https://example.com/hook", 3)
	require.NoError(t, err)
	require.NoError(t, jobs.Save(context.Background(), job))
	return job
}

func dockingRequestedEvent(t *testing.T, job *domain.DockingJob) *events.JobEvent {
	t.Helper()
	event, err := events.NewJobEvent(events.EventTypeDockingRequested, struct {
		JobID     string `json:"job_id"`
		ProteinID string `json:"protein_id"`
	}{JobID: job.ID.String(), ProteinID: job.ProteinID})
	require.NoError(t, err)
	return event
}

func TestJobDispatchEventHandlerEnqueuesJob(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	queue := task.NewJobQueue(4, handlerTestLogger())
	handler := &JobDispatchEventHandler{jobs: jobs, queue: queue, logger: handlerTestLogger()}

	job := dispatchTestJob(t, jobs)
	err := handler.HandleEvent(context.Background(), dockingRequestedEvent(t, job))
	require.NoError(t, err)

	select {
	case queued := <-queue.GetChannel():
		assert.Equal(t, job.ID, queued.ID)
	default:
		t.Fatal("expected job on the queue")
	}
}

func TestJobDispatchEventHandlerIgnoresOtherEventTypes(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	queue := task.NewJobQueue(4, handlerTestLogger())
	handler := &JobDispatchEventHandler{jobs: jobs, queue: queue, logger: handlerTestLogger()}

	event, err := events.NewJobEvent("something_else", struct{}{})
	require.NoError(t, err)

	require.NoError(t, handler.HandleEvent(context.Background(), event))
	assert.Empty(t, queue.GetChannel())
}

func TestJobDispatchEventHandlerUnknownJob(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	queue := task.NewJobQueue(4, handlerTestLogger())
	handler := &JobDispatchEventHandler{jobs: jobs, queue: queue, logger: handlerTestLogger()}

	job, err := domain.NewDockingJob("P69905", "CCO", "https://example.com/hook", 3)
	require.NoError(t, err)

	// Never saved, so dispatch cannot load it.
	err = handler.HandleEvent(context.Background(), dockingRequestedEvent(t, job))
	assert.Error(t, err)
}

func TestJobDispatchEventHandlerQueueFullDefersToRecovery(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	queue := task.NewJobQueue(1, handlerTestLogger())
	handler := &JobDispatchEventHandler{jobs: jobs, queue: queue, logger: handlerTestLogger()}

	first := dispatchTestJob(t, jobs)
	second := dispatchTestJob(t, jobs)

	require.NoError(t, handler.HandleEvent(context.Background(), dockingRequestedEvent(t, first)))

	// The buffer is full, but the row is committed; recovery picks the
	// job up on the next start, so the handler reports success.
	assert.NoError(t, handler.HandleEvent(context.Background(), dockingRequestedEvent(t, second)))
}
