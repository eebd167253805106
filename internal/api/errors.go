package api

import (
	"errors"
	"net/http"

	"github.com/insilica/dockgate/internal/chem"
	"github.com/insilica/dockgate/internal/domain"
	"github.com/insilica/dockgate/internal/protein"
	"github.com/insilica/dockgate/internal/service"
	"github.com/insilica/dockgate/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes
// without leaking internal error types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Bad request errors
	case errors.Is(err, chem.ErrEmptySMILES),
		errors.Is(err, chem.ErrSMILESSyntax),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Not found errors
	case errors.Is(err, protein.ErrProteinNotFound),
		errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, store.ErrJobNotFound):
		return http.StatusNotFound

	// Upstream archive failures
	case errors.Is(err, protein.ErrFetchFailed):
		return http.StatusBadGateway

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, chem.ErrEmptySMILES):
		return "Ligand SMILES string is required"

	case errors.Is(err, chem.ErrSMILESSyntax):
		return "Invalid SMILES string"

	case errors.Is(err, domain.ErrInvalidCallbackURL):
		return "Callback URL must be an absolute http(s) URL"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"

	case errors.Is(err, protein.ErrProteinNotFound):
		return "Protein structure not found"

	case errors.Is(err, protein.ErrFetchFailed):
		return "Failed to fetch protein structure from archive"

	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, store.ErrJobNotFound):
		return "Docking job not found"

	default:
		return "An unexpected error occurred"
	}
}
