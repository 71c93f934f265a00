// Package queue implements the priority command queue: stamp-ordered
// tie-breaking with in-place merge/coalescing of compatible pending
// commands and cross-id opposite cancellation.
package queue

import (
	"container/heap"

	"github.com/velleman/k8090/command"
	"github.com/velleman/k8090/relay"
)

// entry is one pending command plus its position in the id index.
type entry struct {
	cmd   command.Command
	index int // index into the heap's backing slice; maintained by heap.Interface
}

// innerHeap is a container/heap.Interface over *entry, ordered by strictly
// higher priority first, ties broken by smaller stamp (FIFO).
type innerHeap []*entry

func (h innerHeap) Len() int { return len(h) }
func (h innerHeap) Less(i, j int) bool {
	if h[i].cmd.Priority != h[j].cmd.Priority {
		return h[i].cmd.Priority > h[j].cmd.Priority
	}
	return h[i].cmd.Stamp < h[j].cmd.Stamp
}
func (h innerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *innerHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is the single-threaded priority command queue. See Concurrent for a
// thread-safe wrapper.
type Queue struct {
	heap  innerHeap
	byID  map[command.ID][]*entry
	stamp uint64
}

// New constructs an empty Queue.
func New() *Queue {
	return &Queue{byID: make(map[command.ID][]*entry)}
}

// Push assigns the next stamp to cmd and inserts it.
//
// If unique is true and a compatible pending command exists for the same id,
// cmd is merged into it in place (the existing entry's stamp is preserved,
// its priority becomes the max of the two). Otherwise cmd is inserted as a
// new entry. After insert/merge, opposite cancellation runs
// against the opposite RelayOn/RelayOff id, if any.
//
// If unique is false, cmd is always inserted as new (used by the engine for
// retries or when a merge was refused).
func (q *Queue) Push(cmd command.Command, unique bool) {
	cmd.Stamp = q.stamp
	q.stamp++

	if unique {
		if e := q.findCompatible(cmd); e != nil {
			e.cmd = command.Merge(e.cmd, cmd)
			heap.Fix(&q.heap, e.index)
			q.cancelOpposite(e, cmd.Mask)
			return
		}
	}

	e := &entry{cmd: cmd}
	heap.Push(&q.heap, e)
	q.byID[cmd.Id] = append(q.byID[cmd.Id], e)
	q.cancelOpposite(e, cmd.Mask)
}

// oppositeID returns the RelayOff/RelayOn counterpart of id, or false if id
// is not a relay-power mutation.
func oppositeID(id command.ID) (command.ID, bool) {
	switch id {
	case command.RelayOn:
		return command.RelayOff, true
	case command.RelayOff:
		return command.RelayOn, true
	default:
		return command.None, false
	}
}

// findCompatible returns the first pending entry for cmd.Id compatible with
// cmd, or nil.
func (q *Queue) findCompatible(cmd command.Command) *entry {
	for _, e := range q.byID[cmd.Id] {
		if command.Compatible(e.cmd, cmd) {
			return e
		}
	}
	return nil
}

// cancelOpposite runs opposite cancellation between the just-inserted (or
// just-merged) entry e and every pending command of the opposite
// relay-power id. Cancellation is mutual: the overlapping bits disappear
// from both sides, so an on-then-off pair over the same relay never
// reaches the wire as two conflicting frames. Commands whose mask becomes
// empty stay in the queue as no-ops, and neither side's priority or stamp
// is touched.
func (q *Queue) cancelOpposite(e *entry, incomingMask relay.Set) {
	oppID, ok := oppositeID(e.cmd.Id)
	if !ok {
		return
	}
	for _, opp := range q.byID[oppID] {
		overlap := opp.cmd.Mask.Intersect(incomingMask)
		if overlap.Empty() {
			continue
		}
		opp.cmd = command.CancelOpposite(opp.cmd, command.Command{Mask: overlap})
		e.cmd.Mask = e.cmd.Mask.Without(overlap)
	}
}

// Pop removes and returns the command with the largest priority, ties
// broken by smallest stamp. When the queue becomes empty, the stamp counter
// resets to zero.
func (q *Queue) Pop() (command.Command, bool) {
	if q.heap.Len() == 0 {
		return command.Command{}, false
	}
	e := heap.Pop(&q.heap).(*entry)
	q.removeFromIndex(e)
	if q.heap.Len() == 0 {
		q.stamp = 0
	}
	return e.cmd, true
}

func (q *Queue) removeFromIndex(e *entry) {
	list := q.byID[e.cmd.Id]
	for i, other := range list {
		if other == e {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(q.byID, e.cmd.Id)
	} else {
		q.byID[e.cmd.Id] = list
	}
}

// Get returns a read-only snapshot of pending commands for id, in enqueue
// order.
func (q *Queue) Get(id command.ID) []command.Command {
	list := q.byID[id]
	out := make([]command.Command, len(list))
	for i, e := range list {
		out[i] = e.cmd
	}
	return out
}

// UpdateAt overwrites the index'th pending command for id in place, keeping
// its stamp. A priority change re-orders the heap immediately.
func (q *Queue) UpdateAt(id command.ID, index int, newCmd command.Command) bool {
	list := q.byID[id]
	if index < 0 || index >= len(list) {
		return false
	}
	e := list[index]
	newCmd.Stamp = e.cmd.Stamp
	e.cmd = newCmd
	heap.Fix(&q.heap, e.index)
	return true
}

// Size returns the number of pending commands.
func (q *Queue) Size() int { return q.heap.Len() }

// Empty reports whether the queue has no pending commands.
func (q *Queue) Empty() bool { return q.heap.Len() == 0 }

// StampCounter returns the current stamp counter value.
func (q *Queue) StampCounter() uint64 { return q.stamp }

// Clear empties the queue and resets the stamp counter, discarding every
// pending command. Used by the engine's disconnect path.
func (q *Queue) Clear() {
	q.heap = nil
	q.byID = make(map[command.ID][]*entry)
	q.stamp = 0
}
