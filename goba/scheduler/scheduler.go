// Package scheduler implements the priority queue of timed events that
// drives timer overflows and other cycle-scheduled work, grounded on the
// event-queue shape of the teacher's jeebie/events package but adapted
// from a channel-based design to the deterministic, single-threaded
// min-heap the spec requires (ties broken by insertion order within a
// single advance).
package scheduler

import "container/heap"

// Tag identifies the kind of event posted to the scheduler.
type Tag int

const (
	TagTimer0Overflow Tag = iota
	TagTimer1Overflow
	TagTimer2Overflow
	TagTimer3Overflow
	TagAPUSampleTick
	TagAPUFrameSequencer
	TagVideoTransition
)

// Handler is invoked when an event's target cycle has been reached. It
// receives the cycle at which it fired (which may be later than the
// originally scheduled cycle, since events only fire when advance is
// called).
type Handler func(firedAt uint64)

type event struct {
	target uint64
	tag    Tag
	seq    uint64
	handler Handler
}

// eventHeap orders by target cycle first, then by insertion sequence,
// giving the "smallest target-cycle first; ties broken by insertion
// order" guarantee from the spec.
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].target != h[j].target {
		return h[i].target < h[j].target
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(*event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Scheduler owns the pending-event queue exclusively; it is mutated only
// by the bus's cycle-charging callback and by component handlers that
// re-add themselves (e.g. auto-reloading timers).
type Scheduler struct {
	cycle uint64
	queue eventHeap
	seq   uint64
}

// New returns an empty scheduler at cycle 0.
func New() *Scheduler {
	s := &Scheduler{}
	heap.Init(&s.queue)
	return s
}

// Cycle returns the current absolute cycle count.
func (s *Scheduler) Cycle() uint64 { return s.cycle }

// SetCycle overwrites the absolute cycle count, used when restoring a
// save state. Callers must re-arm any pending events themselves (e.g.
// package timer's Restore), since stale targets from before the jump
// would otherwise fire at the wrong moment.
func (s *Scheduler) SetCycle(cycle uint64) { s.cycle = cycle }

// Add schedules handler to fire once the scheduler's cycle reaches
// targetCycle. If targetCycle has already passed, it fires on the next
// Advance call.
func (s *Scheduler) Add(targetCycle uint64, tag Tag, handler Handler) {
	s.seq++
	heap.Push(&s.queue, &event{target: targetCycle, tag: tag, seq: s.seq, handler: handler})
}

// AddRelative schedules handler `delta` cycles from now.
func (s *Scheduler) AddRelative(delta uint64, tag Tag, handler Handler) {
	s.Add(s.cycle+delta, tag, handler)
}

// Remove cancels every pending event with the given tag. Handlers are
// not invoked. Returns the number of events removed.
func (s *Scheduler) Remove(tag Tag) int {
	kept := s.queue[:0]
	removed := 0
	for _, e := range s.queue {
		if e.tag == tag {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.queue = kept
	heap.Init(&s.queue)
	return removed
}

// Pending reports whether any event with the given tag is queued.
func (s *Scheduler) Pending(tag Tag) bool {
	for _, e := range s.queue {
		if e.tag == tag {
			return true
		}
	}
	return false
}

// Advance moves the current cycle forward by delta, firing every event
// whose target cycle is now <= the new current cycle, in ascending
// target-cycle order (ties in insertion order). Handlers may re-add
// themselves or post new events; those are only eligible to fire on a
// later call to Advance, never within the same drain pass, even when
// their target cycle is already due.
func (s *Scheduler) Advance(delta uint64) {
	s.cycle += delta
	limit := s.seq
	var deferred []*event
	for s.queue.Len() > 0 && s.queue[0].target <= s.cycle {
		e := heap.Pop(&s.queue).(*event)
		if e.seq > limit {
			deferred = append(deferred, e)
			continue
		}
		e.handler(s.cycle)
	}
	for _, e := range deferred {
		heap.Push(&s.queue, e)
	}
}
