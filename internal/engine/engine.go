// Package engine wraps the docking inference engine behind a small
// interface. The production implementation shells out to DiffDock; the
// orchestrator treats the engine as an opaque, possibly slow, possibly
// failing unit of work and only cares about the result artifact and the
// transient-versus-fatal classification of failures.
package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Errors classifying engine failures for the worker pool's retry
// decision.
var (
	// ErrTransient marks failures worth retrying on a fresh attempt:
	// accelerator out-of-memory and similar device faults.
	ErrTransient = errors.New("transient engine failure")

	// ErrFatal marks failures tied to the inputs themselves, e.g. a
	// structure or ligand the engine cannot parse. Never retried.
	ErrFatal = errors.New("fatal engine failure")
)

// DockRequest carries one docking invocation's inputs. The accelerator
// index pins the inference to a single device.
type DockRequest struct {
	JobID            uuid.UUID
	ProteinID        string
	ProteinPath      string
	Ligand           string
	AcceleratorIndex int
}

// DockResult is the parsed outcome of a successful docking run.
type DockResult struct {
	// Score is the confidence score of the top-ranked pose.
	Score float64

	// Confidence is the human-readable bucket for Score.
	Confidence string

	// ResultRef points at the stored pose artifact for this job.
	ResultRef string
}

// Engine runs one docking inference. Implementations must honor ctx
// cancellation so the worker's wall-clock budget is enforceable.
type Engine interface {
	Dock(ctx context.Context, req DockRequest) (*DockResult, error)
}
