package hostloop

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// task is the runtime-internal task record: the user function plus the baton
// channels that hand the host flow of control back and forth between the loop
// goroutine and the task goroutine.
//
// Execution model: a task goroutine only ever runs while the loop goroutine
// is blocked inside runTask, waiting on yield. Resuming a task is therefore
// "polling it once on the current flow of control" — the task runs until its
// next suspension point (park) or until it finishes, and only then does the
// loop goroutine continue. All channel operations are synchronous handoffs,
// which is also what makes the non-atomic fields safe: started, finished and
// completedSeen are only touched with the baton held.
type task struct {
	exec *Handle
	fn   func()

	// resume is signaled by the loop goroutine to let the task continue.
	resume chan struct{}
	// yield is signaled by the task goroutine when it parks or finishes.
	yield chan struct{}
	// done is closed once the task has finished and the loop observed it.
	done chan struct{}

	gid atomic.Uint64

	joinMu     sync.Mutex
	joinWakers []func()

	// panicVal holds a recovered panic from fn, if any. Written by the task
	// goroutine before its final yield.
	panicVal any

	started       bool
	finished      bool
	completedSeen bool
}

// runnable is the one-shot schedulable handle posted through the host proxy
// as a poll-task user event. Running it resumes the task on the host flow.
type runnable struct {
	t *task
}

// schedule posts a poll-task user event for this task. Safe from any
// goroutine; delivery order matches send order per the proxy contract. Errors
// are ignored: a send can only fail once the host loop has exited, at which
// point there is nothing left to wake.
func (t *task) schedule() {
	_ = t.exec.proxy.SendUserEvent(runnable{t: t})
}

// body is the task goroutine. It publishes its goroutine ID before running
// user code so runningTask lookups work from the very first statement, and
// always returns the baton, panic or not.
func (t *task) body() {
	t.gid.Store(goroutineID())
	defer func() {
		if r := recover(); r != nil {
			t.panicVal = r
			t.exec.log.Err().
				Any("panic", r).
				Log("hostloop: task panicked")
		}
		t.finished = true
		t.yield <- struct{}{}
	}()
	t.fn()
}

// park suspends the task until its next resume. Must be called on the task
// goroutine, after a waker for the pending completion has been armed.
func (t *task) park() {
	t.yield <- struct{}{}
	<-t.resume
}

// parkForever returns the baton and never resumes. Used by Exit: from the
// task's point of view the call never returns.
func (t *task) parkForever() {
	t.yield <- struct{}{}
	select {}
}

// addJoinWaker registers a waker fired when the task completes, or reports
// that it already has.
func (t *task) addJoinWaker(wake func()) bool {
	t.joinMu.Lock()
	defer t.joinMu.Unlock()
	select {
	case <-t.done:
		return true
	default:
	}
	t.joinWakers = append(t.joinWakers, wake)
	return false
}

// complete marks the task finished and fires the join wakers. Called on the
// loop goroutine, exactly once, after the final yield was observed.
func (t *task) complete() {
	t.joinMu.Lock()
	close(t.done)
	wakers := t.joinWakers
	t.joinWakers = nil
	t.joinMu.Unlock()
	for _, w := range wakers {
		w()
	}
}

// Task is the join handle returned by [Spawn] and [SpawnLocal]. Tasks are
// detached by default: dropping the handle does not cancel the task.
type Task[R any] struct {
	t      *task
	result *R
}

// Join blocks until the task completes and returns its result. If the task
// panicked the result is the zero value and the error is a [PanicError]
// wrapping the recovered value. Join may be called from another task (which
// parks) or from a foreign goroutine (which blocks); joining a task from
// itself deadlocks and is a programming error.
//
// Join after completion returns the same result again.
func (h *Task[R]) Join() (R, error) {
	t := h.t
	block(func(wake func()) bool {
		return t.addJoinWaker(wake)
	})
	var zero R
	if t.panicVal != nil {
		return zero, PanicError{Value: t.panicVal}
	}
	return *h.result, nil
}

// Detach documents that the task is intentionally left running without a
// join. Tasks are detached by default; Detach only discards the handle's
// result reference.
func (h *Task[R]) Detach() {
	h.result = nil
}

// block is the shared suspension primitive behind Subscription.Await,
// TimerFuture.Await and Task.Join.
//
// arm runs under the caller's own lock discipline; it either observes the
// operation already complete (returns true) or registers wake and returns
// false. wake is invoked at most once, on the host flow of control, when the
// operation completes.
//
// On a task goroutine the waker schedules the task and block parks it. On
// any other goroutine the waker is a buffered channel send and block simply
// receives. Blocking the host loop goroutine itself would freeze the runtime
// and panics instead.
func block(arm func(wake func()) bool) {
	if h := loadHandle(); h != nil {
		if h.isLoopGoroutine() {
			panic("hostloop: cannot block the host loop goroutine; predicates and host callbacks must not await")
		}
		if t := h.runningTask(); t != nil {
			if arm(t.schedule) {
				return
			}
			t.park()
			return
		}
	}
	ch := make(chan struct{}, 1)
	if arm(func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}) {
		return
	}
	<-ch
}

// goroutineID returns the current goroutine's ID by parsing the stack
// header. It is only used for host-flow affinity checks, never in a hot
// path that matters beyond a single park/resume cycle.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
