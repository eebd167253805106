// Package store defines persistence interfaces and shared database
// helpers. Concrete implementations live under internal/platform, with
// PostgreSQL as the production backend.
package store
