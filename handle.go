package hostloop

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// Handle is the process-singleton executor handle. It owns the host proxy
// (for cross-thread wakeups), the timer service, the per-kind event sources,
// and the host-flow identity used by the SpawnLocal and WithTarget checks.
//
// A Handle is constructed at [Run] entry, published to the process slot, and
// never torn down: accessors keep working after the loop exits, though
// scheduling against an exited loop is a silent no-op.
type Handle struct {
	host  Host
	proxy Proxy
	timer *timerService

	log     *logiface.Logger[logiface.Event]
	metrics *Metrics

	resumed   EventSource[struct{}]
	suspended EventSource[struct{}]
	window    EventSource[WindowHostEvent]
	device    EventSource[DeviceHostEvent]
	redraw    EventSource[WindowID]

	state   execState
	loopGID atomic.Uint64
	current atomic.Pointer[task]

	// target is the scoped host target for the event being dispatched.
	// Written by the loop goroutine around each task poll; read only by the
	// task that is currently holding the baton.
	target Target

	// exitCode is written by the exit-request dispatch and read by Run after
	// the host loop returns; both on the loop goroutine.
	exitCode int
}

// processHandle is the write-once-per-run slot holding the current runtime.
var processHandle atomic.Pointer[Handle]

// runActive guards against two hosts running concurrently in one process.
var runActive atomic.Bool

func loadHandle() *Handle {
	return processHandle.Load()
}

// Executor returns the process runtime handle. It panics if no [Run] call
// has begun; reading the handle before the runtime exists is a programming
// error.
func Executor() *Handle {
	h := loadHandle()
	if h == nil {
		panic(ErrNotStarted)
	}
	return h
}

// Resumed returns the static event source for host resume transitions.
func Resumed() *EventSource[struct{}] { return &Executor().resumed }

// Suspended returns the static event source for host suspend transitions.
func Suspended() *EventSource[struct{}] { return &Executor().suspended }

// Window returns the static event source for per-window host events.
func Window() *EventSource[WindowHostEvent] { return &Executor().window }

// Device returns the static event source for raw device host events.
func Device() *EventSource[DeviceHostEvent] { return &Executor().device }

// RedrawRequested returns the static event source for redraw requests.
func RedrawRequested() *EventSource[WindowID] { return &Executor().redraw }

// isLoopGoroutine reports whether the caller is the host loop goroutine of a
// currently running loop.
func (h *Handle) isLoopGoroutine() bool {
	gid := h.loopGID.Load()
	return gid != 0 && h.state.Load() == stateRunning && gid == goroutineID()
}

// runningTask returns the task currently holding the baton, if the caller is
// its goroutine, else nil.
func (h *Handle) runningTask() *task {
	t := h.current.Load()
	if t == nil || t.gid.Load() != goroutineID() {
		return nil
	}
	return t
}

// onHostFlow reports whether the caller is on the host flow of control:
// either the loop goroutine itself or the task currently being polled.
func (h *Handle) onHostFlow() bool {
	return h.isLoopGoroutine() || h.runningTask() != nil
}

// newTask builds a task record without scheduling it.
func (h *Handle) newTask(fn func()) *task {
	h.metrics.addTaskSpawned()
	return &task{
		exec:   h,
		fn:     fn,
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// spawnUnchecked schedules fn as a detached task with no host-flow check.
// The runtime uses it for the main task; everything else goes through Spawn
// or SpawnLocal.
func (h *Handle) spawnUnchecked(fn func()) *task {
	t := h.newTask(fn)
	t.schedule()
	return t
}

// spawnOn implements Spawn and SpawnLocal against an explicit handle.
func spawnOn[R any](h *Handle, fn func() R, local bool) *Task[R] {
	if local && !h.onHostFlow() {
		panic("hostloop: SpawnLocal called off the host thread")
	}
	result := new(R)
	t := h.spawnUnchecked(func() {
		*result = fn()
	})
	return &Task[R]{t: t, result: result}
}

// Spawn schedules fn as a new task and returns its join handle. It may be
// called from any goroutine; the task itself always runs on the host flow of
// control, between host-event dispatches. fn's captures cross goroutines and
// must be safe to transfer.
func Spawn[R any](fn func() R) *Task[R] {
	return spawnOn(Executor(), fn, false)
}

// SpawnLocal is [Spawn] restricted to the host flow of control: it panics
// when called from any other goroutine. Use it when fn closes over state
// that must never be touched off the host flow.
func SpawnLocal[R any](fn func() R) *Task[R] {
	return spawnOn(Executor(), fn, true)
}

// Exit posts an exit request carrying code and, when called on a task,
// never returns: the task yields the host flow for the last time and the
// loop terminates with code. Remaining scheduled tasks are abandoned.
//
// From a foreign goroutine Exit returns after posting the request.
func Exit(code int) {
	Executor().Exit(code)
}

// Exit posts an exit request; see the package function [Exit].
func (h *Handle) Exit(code int) {
	_ = h.proxy.SendUserEvent(exitRequest{code: code})
	if t := h.runningTask(); t != nil {
		t.parkForever()
	}
}

// Wait returns a timer future completing after at least d has elapsed.
// Creating the future wakes the host loop so a freshly shortened deadline is
// honored even if the host was already suspended.
func Wait(d time.Duration) *TimerFuture {
	return Executor().Wait(d)
}

// Wait returns a timer future; see the package function [Wait].
func (h *Handle) Wait(d time.Duration) *TimerFuture {
	f := h.timer.delay(d)
	_ = h.proxy.SendUserEvent(wakeSignal{})
	return f
}

// WaitDeadline returns a timer future completing at or after the monotonic
// millisecond timestamp t (see [Now]). Like [Wait], it wakes the host loop.
func WaitDeadline(t uint64) *TimerFuture {
	return Executor().WaitDeadline(t)
}

// WaitDeadline returns a timer future; see the package function
// [WaitDeadline].
func (h *Handle) WaitDeadline(t uint64) *TimerFuture {
	f := h.timer.deadline(t)
	_ = h.proxy.SendUserEvent(wakeSignal{})
	return f
}

// Sleep parks the calling task (or blocks a foreign goroutine) for at least
// d. Shorthand for Wait(d).Await().
func Sleep(d time.Duration) {
	Wait(d).Await()
}

// Now returns the runtime's monotonic clock in milliseconds: the timebase of
// [WaitDeadline] and of the deadlines handed to the host.
func Now() uint64 {
	return Executor().timer.now()
}

// WithTarget runs fn with the scoped host target. It panics when called
// outside a task poll: the target borrows from the host callback frame and
// is only valid while the host flow of control is inside one.
func WithTarget(fn func(Target)) {
	h := Executor()
	if h.runningTask() == nil {
		panic("hostloop: WithTarget called outside a task poll")
	}
	fn(h.target)
}

// Host returns the host the runtime was started against.
func (h *Handle) Host() Host {
	return h.host
}

// Metrics returns a snapshot of the runtime counters, or the zero snapshot
// when metrics were not enabled.
func (h *Handle) Metrics() MetricsSnapshot {
	return h.metrics.snapshot()
}
