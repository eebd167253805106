// Package mocks provides in-memory test doubles for the store and
// service interfaces.
package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insilica/dockgate/internal/domain"
	"github.com/insilica/dockgate/internal/store"
)

// MockJobStore implements store.JobStore in memory for testing. The
// compare-and-swap claim methods behave like the real store so tests
// can exercise redelivery idempotence.
type MockJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.DockingJob

	// Optional overrides
	SaveFn          func(ctx context.Context, job *domain.DockingJob) error
	ClaimDeliveryFn func(ctx context.Context, id uuid.UUID) (bool, error)
}

// NewMockJobStore creates an empty MockJobStore.
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{jobs: make(map[uuid.UUID]*domain.DockingJob)}
}

// Save implements store.JobStore.
func (m *MockJobStore) Save(ctx context.Context, job *domain.DockingJob) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, job)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return store.ErrDuplicate
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

// GetByID implements store.JobStore.
func (m *MockJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.DockingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

// ClaimRunning implements store.JobStore.
func (m *MockJobStore) ClaimRunning(ctx context.Context, id uuid.UUID, workerIndex int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return false, store.ErrJobNotFound
	}
	if job.State != domain.JobStateQueued {
		return false, nil
	}
	job.State = domain.JobStateRunning
	job.AssignedWorker = workerIndex
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

// Requeue implements store.JobStore.
func (m *MockJobStore) Requeue(ctx context.Context, id uuid.UUID, attempts int, kind domain.ErrorKind, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	job.State = domain.JobStateQueued
	job.Attempts = attempts
	job.ErrorKind = kind
	job.ErrorMessage = message
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkSucceeded implements store.JobStore.
func (m *MockJobStore) MarkSucceeded(ctx context.Context, id uuid.UUID, resultRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	job.State = domain.JobStateSucceeded
	job.ResultRef = resultRef
	job.ErrorKind = ""
	job.ErrorMessage = ""
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed implements store.JobStore.
func (m *MockJobStore) MarkFailed(ctx context.Context, id uuid.UUID, kind domain.ErrorKind, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	job.State = domain.JobStateFailed
	job.ErrorKind = kind
	job.ErrorMessage = message
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// ClaimDelivery implements store.JobStore.
func (m *MockJobStore) ClaimDelivery(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.ClaimDeliveryFn != nil {
		return m.ClaimDeliveryFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return false, store.ErrJobNotFound
	}
	if job.DeliveryStatus != domain.DeliveryPending {
		return false, nil
	}
	job.DeliveryStatus = domain.DeliveryInFlight
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

// FinishDelivery implements store.JobStore.
func (m *MockJobStore) FinishDelivery(ctx context.Context, id uuid.UUID, status domain.DeliveryStatus, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	job.DeliveryStatus = status
	job.DeliveryAttempts = attempts
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// ListByState implements store.JobStore.
func (m *MockJobStore) ListByState(ctx context.Context, state domain.JobState) ([]*domain.DockingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.DockingJob
	for _, job := range m.jobs {
		if job.State == state {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListUndelivered implements store.JobStore.
func (m *MockJobStore) ListUndelivered(ctx context.Context) ([]*domain.DockingJob, error) {
	return m.listDeliveries(domain.DeliveryPending, time.Time{}), nil
}

// ListStuckDeliveries implements store.JobStore.
func (m *MockJobStore) ListStuckDeliveries(ctx context.Context, age time.Duration) ([]*domain.DockingJob, error) {
	cutoff := time.Now().UTC().Add(-age)
	return m.listDeliveries(domain.DeliveryInFlight, cutoff), nil
}

// ReleaseDelivery implements store.JobStore.
func (m *MockJobStore) ReleaseDelivery(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return false, store.ErrJobNotFound
	}
	if job.DeliveryStatus != domain.DeliveryInFlight {
		return false, nil
	}
	job.DeliveryStatus = domain.DeliveryPending
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

// listDeliveries returns terminal jobs in the given delivery status,
// oldest first. A non-zero cutoff restricts to jobs not updated since.
func (m *MockJobStore) listDeliveries(status domain.DeliveryStatus, cutoff time.Time) []*domain.DockingJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.DockingJob
	for _, job := range m.jobs {
		if !job.State.Terminal() || job.DeliveryStatus != status {
			continue
		}
		if !cutoff.IsZero() && job.UpdatedAt.After(cutoff) {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// WithTx implements store.JobStore; transactions are a no-op in memory.
func (m *MockJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return m
}
