// Package postgres implements the store interfaces using PostgreSQL
// via database/sql over the pgx driver. Schema management is handled by
// goose migrations applied at server startup.
package postgres
