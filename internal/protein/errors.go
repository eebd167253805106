package protein

import "errors"

// Errors returned by the resolver.
var (
	// ErrProteinNotFound is returned when an identifier exists neither
	// in the local store nor in the remote archive.
	ErrProteinNotFound = errors.New("protein structure not found")

	// ErrFetchFailed is returned when the remote archive is reachable
	// but the transfer fails: non-2xx response, truncated stream, or a
	// file too small to be a usable structure.
	ErrFetchFailed = errors.New("protein fetch failed")
)
