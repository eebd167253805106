package task

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SlotStatus is a point-in-time view of one accelerator slot.
type SlotStatus struct {
	AcceleratorIndex int
	Busy             bool
	CurrentJobID     uuid.UUID
}

// SlotTable tracks the fixed set of accelerator slots. One slot exists
// per physical accelerator; the invariant is at most one job per slot
// at any time. Each worker goroutine exclusively owns its index, so the
// table is bookkeeping for observability and a guard against wiring
// bugs rather than a scheduler.
type SlotTable struct {
	mu    sync.Mutex
	slots []SlotStatus
}

// NewSlotTable creates a table with one free slot per accelerator.
func NewSlotTable(acceleratorCount int) *SlotTable {
	slots := make([]SlotStatus, acceleratorCount)
	for i := range slots {
		slots[i].AcceleratorIndex = i
	}
	return &SlotTable{slots: slots}
}

// Claim marks the slot busy with the given job. It fails if the index
// is out of range or the slot is already occupied, which would mean two
// jobs were dispatched to one accelerator.
func (t *SlotTable) Claim(index int, jobID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.slots) {
		return fmt.Errorf("accelerator index %d out of range [0,%d)", index, len(t.slots))
	}
	if t.slots[index].Busy {
		return fmt.Errorf("accelerator %d already running job %s", index, t.slots[index].CurrentJobID)
	}
	t.slots[index].Busy = true
	t.slots[index].CurrentJobID = jobID
	return nil
}

// Release frees the slot after its job reaches a terminal state.
func (t *SlotTable) Release(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.slots) {
		return
	}
	t.slots[index].Busy = false
	t.slots[index].CurrentJobID = uuid.Nil
}

// Snapshot returns a copy of all slot states.
func (t *SlotTable) Snapshot() []SlotStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SlotStatus, len(t.slots))
	copy(out, t.slots)
	return out
}

// Size returns the number of slots.
func (t *SlotTable) Size() int {
	return len(t.slots)
}
