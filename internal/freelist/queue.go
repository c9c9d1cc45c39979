// Package freelist implements a fixed-capacity FIFO queue of free slot
// indices.
//
// Slots released longest ago are reused first, which keeps recently
// vacated slots cold for a while and makes reuse order deterministic.
package freelist

import (
	"github.com/arloliu/slotpool/types"
)

// Queue is a circular FIFO of slot indices with fixed capacity.
//
// Head and tail are monotonically increasing counters; their difference
// is the queue length and each is reduced modulo capacity to index the
// backing array. The queue never holds more entries than the pool has
// slots, so the counters cannot diverge by more than capacity.
//
// Queue is not safe for concurrent use; callers serialize access.
type Queue struct {
	slots []int
	head  uint64
	tail  uint64

	logger types.Logger
}

// New creates a queue with the given capacity, initially empty.
//
// Parameters:
//   - capacity: Pool size; the maximum number of entries
//   - logger: Logger for overflow reporting
//
// Returns:
//   - *Queue: A new empty queue
func New(capacity int, logger types.Logger) *Queue {
	return &Queue{
		slots:  make([]int, capacity),
		logger: logger,
	}
}

// Fill resets the queue to contain every slot index in ascending order.
func (q *Queue) Fill() {
	q.head = 0
	q.tail = 0
	for i := range q.slots {
		q.slots[i] = i
		q.tail++
	}
}

// Enqueue appends a freed slot index to the tail.
//
// Overflow indicates a double release upstream; the entry is dropped and
// a warning logged rather than corrupting the ring.
//
// Parameters:
//   - slot: Slot index to return to the free list
//
// Returns:
//   - bool: false if the queue is already full
func (q *Queue) Enqueue(slot int) bool {
	if q.Len() >= len(q.slots) {
		q.logger.Warn("free slot queue overflow, dropping entry", "slot", slot)
		return false
	}

	q.slots[q.tail%uint64(len(q.slots))] = slot
	q.tail++

	return true
}

// Dequeue removes and returns the oldest free slot index.
//
// Returns:
//   - int: The slot index, or types.NoSlot if the queue is empty
func (q *Queue) Dequeue() int {
	if q.head == q.tail {
		return types.NoSlot
	}

	slot := q.slots[q.head%uint64(len(q.slots))]
	q.head++

	return slot
}

// Len returns the number of queued free slots.
func (q *Queue) Len() int {
	return int(q.tail - q.head)
}

// Rebuild repopulates the queue from an assignment snapshot, enqueueing
// every unassigned slot in ascending index order.
//
// Used after coordinator handoff, when the local queue reflects a stale
// view of the table.
//
// Parameters:
//   - assignments: Current assignment per slot; NoMember marks a free slot
func (q *Queue) Rebuild(assignments []types.MemberID) {
	q.head = 0
	q.tail = 0
	for i, member := range assignments {
		if member == types.NoMember {
			q.slots[q.tail%uint64(len(q.slots))] = i
			q.tail++
		}
	}
}
