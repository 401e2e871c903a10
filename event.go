package hostloop

import (
	"sync"
	"sync/atomic"
)

// EventSource multiplexes one typed host event kind to any number of awaiting
// listeners. The zero value is ready to use; the per-kind sources owned by
// the runtime are never destroyed.
//
// Listeners are kept in an intrusive doubly-linked list guarded by a single
// mutex. Predicates run under that lock, which is what bounds the payload
// borrow to the emit call: by the time Emit returns, no listener can still be
// executing against the payload.
//
// Thread Safety:
// Emit must only be called from the host flow of control (the run-loop
// bridge does this). Subscribe, Await and Cancel are safe from any goroutine.
//
// Lock ordering: a predicate must not emit on any source (re-entrant emit on
// the same source panics), and must not acquire another source's lock if that
// source could transitively be emitting into this one.
type EventSource[T any] struct {
	head     *listener[T]
	tail     *listener[T]
	mu       sync.Mutex
	count    int
	emitting atomic.Uint64
}

// listener is an intrusive list node embedded in a [Subscription]. Its link
// fields, done flag and waker are guarded by the owning source's mutex.
//
// State machine: initial (unlinked) → armed (linked, waker set by Await) →
// completed (done, waker consumed) → terminal (unlinked by Await), with
// cancellation unlinking from any state.
type listener[T any] struct {
	prev   *listener[T]
	next   *listener[T]
	match  func(*T) bool
	wake   func()
	done   bool
	linked bool
}

// Emit walks the listener list front-to-back, invoking each live listener's
// predicate on payload. A listener whose predicate matches is marked done,
// its completion value is stored, and its waker (if armed) fires; emission
// then continues with the next listener regardless.
//
// The payload pointer is valid only for the duration of each predicate call.
// Predicates must not retain it: the referent is typically a host stack
// record that is reused or dead as soon as the host callback returns.
//
// Emit never fails. A predicate panic propagates to the caller with the
// source unlocked and the emitting mark cleared. Re-entrant Emit on the same
// source panics.
func (s *EventSource[T]) Emit(payload *T) {
	// emitting holds the goroutine ID of the Emit in progress (0 when idle)
	// and is checked before taking mu, so a predicate that emits on this
	// source panics instead of deadlocking on the held lock.
	gid := goroutineID()
	if s.emitting.Load() == gid {
		panic("hostloop: re-entrant Emit on the same EventSource")
	}
	s.mu.Lock()
	s.emitting.Store(gid)
	defer func() {
		s.emitting.Store(0)
		s.mu.Unlock()
	}()

	for n := s.head; n != nil; n = n.next {
		if n.done {
			continue
		}
		if n.match(payload) {
			n.done = true
			if w := n.wake; w != nil {
				n.wake = nil
				w()
			}
		}
	}
}

// ListenerCount returns the number of currently linked listeners, completed
// but not yet consumed ones included.
func (s *EventSource[T]) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *EventSource[T]) link(n *listener[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.linked = true
	n.prev = s.tail
	if s.tail != nil {
		s.tail.next = n
	} else {
		s.head = n
	}
	s.tail = n
	s.count++
}

// unlinkLocked detaches n; idempotent. Caller holds s.mu.
func (s *EventSource[T]) unlinkLocked(n *listener[T]) {
	if !n.linked {
		return
	}
	n.linked = false
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		s.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	s.count--
}

// Subscription is one pending (or completed) listener on an [EventSource].
// It is created by [On] or [Once] and completes when its predicate first
// returns ok. The completion value is produced exactly once; Await after
// completion keeps returning the same value.
type Subscription[T, R any] struct {
	src   *EventSource[T]
	node  *listener[T]
	value R
}

// On links a listener onto src and returns its subscription. The listener is
// live immediately: events emitted between On and Await are observed (the
// predicate runs and, on a match, the completion value is latched for the
// eventual Await).
//
// pred is invoked under the source lock, on the host flow of control, once
// per emitted payload until it reports a match. It must be short,
// non-blocking, and must not retain the payload pointer.
func On[T, R any](src *EventSource[T], pred func(*T) (R, bool)) *Subscription[T, R] {
	sub := &Subscription[T, R]{src: src, node: &listener[T]{}}
	sub.node.match = func(payload *T) bool {
		r, ok := pred(payload)
		if !ok {
			return false
		}
		sub.value = r
		return true
	}
	src.link(sub.node)
	return sub
}

// Once is [On] for single-shot waits. Completion is at-most-once either way
// (the done flag stops predicate invocation after the first match); Once
// exists to mark call sites that subscribe afresh per event rather than hold
// a long-lived subscription.
func Once[T, R any](src *EventSource[T], pred func(*T) (R, bool)) *Subscription[T, R] {
	return On(src, pred)
}

// Await blocks until the subscription completes and returns the completion
// value, unlinking the listener. On a task it parks the task, yielding the
// host flow of control; on any other goroutine it blocks that goroutine.
// Await is idempotent: after completion it returns the same value again
// without relinking.
//
// Awaiting a cancelled subscription returns the zero completion value.
func (sub *Subscription[T, R]) Await() R {
	s := sub.src
	block(func(wake func()) bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub.node.done || !sub.node.linked {
			return true
		}
		sub.node.wake = wake
		return false
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlinkLocked(sub.node)
	return sub.value
}

// Cancel unlinks the listener under the source lock, releasing it without
// completing. Safe to call from any goroutine, concurrently with Emit, and
// more than once. A waiter blocked in Await is not released; Cancel is meant
// for subscriptions that were never awaited or whose Await already returned.
func (sub *Subscription[T, R]) Cancel() {
	s := sub.src
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlinkLocked(sub.node)
}

// Done reports whether the subscription has completed.
func (sub *Subscription[T, R]) Done() bool {
	s := sub.src
	s.mu.Lock()
	defer s.mu.Unlock()
	return sub.node.done
}
