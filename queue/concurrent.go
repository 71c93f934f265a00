package queue

import (
	"sync"

	"github.com/velleman/k8090/command"
)

// Concurrent wraps a Queue with a single mutex so every observable operation
// (Push, Pop, Get, UpdateAt, Size, Empty, StampCounter) appears atomic.
// Compatibility lookup, merge, opposite-cancellation, and stamp assignment
// all happen under the same lock, so an enqueue from another goroutine is
// indivisible.
type Concurrent struct {
	mu sync.Mutex
	q  *Queue
}

// NewConcurrent constructs an empty thread-safe queue.
func NewConcurrent() *Concurrent {
	return &Concurrent{q: New()}
}

// Push assigns the next stamp to cmd and inserts/merges it; see Queue.Push.
func (c *Concurrent) Push(cmd command.Command, unique bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.q.Push(cmd, unique)
}

// Pop removes and returns the highest-priority, oldest-stamped command.
func (c *Concurrent) Pop() (command.Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Pop()
}

// Get returns a read-only snapshot of pending commands for id.
func (c *Concurrent) Get(id command.ID) []command.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Get(id)
}

// UpdateAt overwrites a pending command in place, keeping its stamp.
func (c *Concurrent) UpdateAt(id command.ID, index int, newCmd command.Command) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.UpdateAt(id, index, newCmd)
}

// Size returns the number of pending commands.
func (c *Concurrent) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Size()
}

// Empty reports whether the queue has no pending commands.
func (c *Concurrent) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Empty()
}

// StampCounter returns the current stamp counter value.
func (c *Concurrent) StampCounter() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.StampCounter()
}

// Clear empties the queue and resets the stamp counter.
func (c *Concurrent) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.q.Clear()
}
