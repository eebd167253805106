// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyProteinID is returned when a protein identifier is empty.
	ErrEmptyProteinID = errors.New("protein ID cannot be empty")

	// ErrInvalidLigand is returned when a ligand descriptor fails the
	// syntactic SMILES check.
	ErrInvalidLigand = errors.New("invalid ligand descriptor")

	// ErrInvalidCallbackURL is returned when a callback URL is not an
	// absolute http or https URL.
	ErrInvalidCallbackURL = errors.New("invalid callback URL")

	// ErrInvalidJobState is returned when a job state transition is not
	// allowed by the job lifecycle.
	ErrInvalidJobState = errors.New("invalid job state transition")
)
