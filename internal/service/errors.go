package service

import (
	"errors"
	"fmt"

	"github.com/insilica/dockgate/internal/chem"
	"github.com/insilica/dockgate/internal/domain"
	"github.com/insilica/dockgate/internal/protein"
	"github.com/insilica/dockgate/internal/store"
)

// Sentinel errors for the docking service.
var (
	// ErrJobNotFound indicates that the requested docking job does not
	// exist.
	ErrJobNotFound = errors.New("docking job not found")
)

// DockingServiceError wraps errors from the docking service with
// context about the failed operation.
type DockingServiceError struct {
	// Operation is the operation that failed (e.g., "start_docking").
	Operation string
	// Message is a human-readable description of the error.
	Message string
	// Err is the underlying error that caused the failure.
	Err error
}

// Error implements the error interface for DockingServiceError.
func (e *DockingServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("docking service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("docking service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *DockingServiceError) Unwrap() error {
	return e.Err
}

// NewDockingServiceError creates a new DockingServiceError. Sentinel
// errors the API layer maps to status codes are returned unchanged so
// errors.Is keeps working across layers.
func NewDockingServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrJobNotFound),
		errors.Is(err, store.ErrJobNotFound):
		return ErrJobNotFound
	case errors.Is(err, chem.ErrEmptySMILES),
		errors.Is(err, chem.ErrSMILESSyntax),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, protein.ErrProteinNotFound),
		errors.Is(err, protein.ErrFetchFailed):
		return err
	}

	return &DockingServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
