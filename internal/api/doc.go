// Package api implements the HTTP surface of the docking service:
// request/response models, handlers, and the mapping from internal
// errors to status codes.
package api
