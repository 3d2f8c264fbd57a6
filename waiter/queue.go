// Package waiter provides a minimal wait queue for terminal transfer
// events, adapted from the teacher's event-mask wait queue. The receiver
// engine has exactly one event worth waiting for — "the transfer reached a
// terminal state" — so the bitmask machinery of the original is collapsed
// to a single notification carrying a Result; the intrusive-list plumbing
// that let the original deliver to many waiters without allocation is kept,
// since a session can legitimately have more than one listener (the driver
// and, in tests, an observer).
package waiter

import (
	"sync"

	"github.com/quietport/rft/ilist"
)

// Result is delivered to every registered entry when the transfer reaches a
// terminal state. Err is nil on successful completion.
type Result struct {
	Err error
}

// Entry represents a waiter registered with a Queue. The zero value is not
// usable; create one with NewEntry.
type Entry struct {
	ilist.Entry
	ch chan Result
}

// NewEntry creates an Entry along with the channel that will receive its
// single Result.
func NewEntry() (*Entry, <-chan Result) {
	ch := make(chan Result, 1)
	return &Entry{ch: ch}, ch
}

// Queue is a wait queue that notifies every registered entry exactly once.
//
// The zero value for Queue is an empty queue ready for use.
type Queue struct {
	mu       sync.Mutex
	list     ilist.List
	notified bool
	result   Result
}

// Register adds e to the queue. If the queue has already been notified,
// Register delivers the stored result to e immediately instead of queuing
// it, so a late registration (e.g. a driver that starts listening after a
// fast COMPLETE) never blocks forever.
func (q *Queue) Register(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.notified {
		e.ch <- q.result
		return
	}
	q.list.PushBack(e)
}

// Unregister removes e from the queue. It is a no-op if e was never
// registered or the queue has already notified.
func (q *Queue) Unregister(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.notified {
		return
	}
	for it := q.list.Front(); it != nil; it = it.Next() {
		if it == e {
			q.list.Remove(e)
			return
		}
	}
}

// Notify delivers result to every currently registered entry and remembers
// it for any future Register call. Notify is idempotent: only the first
// call has any effect, matching the protocol's requirement that completion
// (or failure) is signalled exactly once.
func (q *Queue) Notify(result Result) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.notified {
		return
	}
	q.notified = true
	q.result = result

	for it := q.list.Front(); it != nil; it = it.Next() {
		it.(*Entry).ch <- result
	}
	q.list.Reset()
}
