// Package task contains the docking job dispatch machinery: the
// in-memory hand-off queue between intake and the workers, the
// fixed-size accelerator slot table, and the runner that owns one
// worker goroutine per accelerator. Durability lives in the job store;
// the queue only buffers jobs whose rows are already persisted, and the
// runner re-enqueues persisted jobs after a restart.
package task
