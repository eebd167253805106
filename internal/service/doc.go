// Package service contains the application's use-case layer. It sits
// between the HTTP handlers and the domain/store packages and owns the
// intake workflow: validating ligands, resolving protein structures,
// persisting jobs, and handing them to the worker pool.
package service
