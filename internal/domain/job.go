package domain

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// JobState represents the lifecycle state of a docking job.
type JobState string

// Job lifecycle states. Jobs progress strictly
// queued -> running -> succeeded | failed.
const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether s is a terminal job state.
func (s JobState) Terminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

// DeliveryStatus tracks the callback delivery outcome for a job.
// It only becomes meaningful once the job reaches a terminal state.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryInFlight  DeliveryStatus = "delivering"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "delivery_failed"
)

// ErrorKind classifies a job failure for retry decisions and for the
// callback payload.
type ErrorKind string

const (
	// ErrorKindTimeout marks a job that exceeded its wall-clock budget.
	// Retried as transient.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindAccelerator marks a recoverable accelerator fault such as
	// an out-of-memory condition. Retried as transient.
	ErrorKindAccelerator ErrorKind = "accelerator"

	// ErrorKindEngine marks an engine-level rejection of the inputs, e.g.
	// a malformed protein structure. Terminal, never retried.
	ErrorKindEngine ErrorKind = "engine"

	// ErrorKindInternal marks an orchestrator-side failure such as a
	// panic in the worker loop. Terminal.
	ErrorKindInternal ErrorKind = "internal"
)

// Transient reports whether a failure of this kind is eligible for a
// job-level retry.
func (k ErrorKind) Transient() bool {
	return k == ErrorKindTimeout || k == ErrorKindAccelerator
}

// DockingJob describes one docking request and its lifecycle. The
// identifying fields are immutable after creation; state, attempts,
// assignment, result and delivery fields are updated only by the worker
// executing the job or by the callback dispatcher.
type DockingJob struct {
	ID          uuid.UUID
	ProteinID   string
	Ligand      string
	CallbackURL string

	State       JobState
	Attempts    int
	MaxAttempts int

	// AssignedWorker is the accelerator index of the worker that last
	// claimed the job, or -1 before first dispatch.
	AssignedWorker int

	// ResultRef points at the stored result artifact once the job
	// succeeds.
	ResultRef string

	ErrorKind    ErrorKind
	ErrorMessage string

	DeliveryStatus   DeliveryStatus
	DeliveryAttempts int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDockingJob creates a new DockingJob in the queued state.
// It validates the identifying fields and returns a validation error if
// any of them is unacceptable. Ligand syntax is checked separately by
// the intake layer before construction.
func NewDockingJob(proteinID, ligand, callbackURL string, maxAttempts int) (*DockingJob, error) {
	if proteinID == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrEmptyProteinID)
	}
	if ligand == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrInvalidLigand)
	}
	if err := validateCallbackURL(callbackURL); err != nil {
		return nil, err
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	now := time.Now().UTC()
	return &DockingJob{
		ID:             uuid.New(),
		ProteinID:      proteinID,
		Ligand:         ligand,
		CallbackURL:    callbackURL,
		State:          JobStateQueued,
		Attempts:       0,
		MaxAttempts:    maxAttempts,
		AssignedWorker: -1,
		DeliveryStatus: DeliveryPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// RetriesRemaining reports whether the job has attempts left before a
// transient failure becomes terminal.
func (j *DockingJob) RetriesRemaining() bool {
	return j.Attempts < j.MaxAttempts
}

func validateCallbackURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w: %v", ErrValidation, ErrInvalidCallbackURL, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %w: must be an absolute http(s) URL", ErrValidation, ErrInvalidCallbackURL)
	}
	return nil
}
