package hostloop

import (
	"errors"
	"time"
)

// Standard errors.
var (
	// ErrNotStarted is the panic value for handle access before Run.
	ErrNotStarted = errors.New("hostloop: runtime is not started")

	// ErrAlreadyRunning is returned when Run is called while another host
	// loop is still executing in this process.
	ErrAlreadyRunning = errors.New("hostloop: a runtime is already running in this process")
)

// wakeSignal is the user event posted to unblock a waiting host without any
// other effect; the bridge treats it as a no-op.
type wakeSignal struct{}

// exitRequest is the user event asking the bridge to terminate the host loop.
type exitRequest struct {
	code int
}

// Run constructs the process runtime, spawns main as the detached main task,
// and enters the blocking host loop. It returns the exit code requested via
// [Exit] (0 if main returned without calling it) or the host's own failure.
//
// The main task is pre-scheduled through the proxy before the loop starts,
// so the first thing the host delivers is its initial poll. main, like every
// task, executes on the host flow of control.
//
// One runtime may run at a time per process; a concurrent Run returns
// ErrAlreadyRunning. A sequential Run (after the previous loop exited)
// installs a fresh handle in the process slot.
func Run(host Host, main func(), opts ...RunOption) (int, error) {
	cfg, err := resolveRunOptions(opts)
	if err != nil {
		return 0, err
	}

	if !runActive.CompareAndSwap(false, true) {
		return 0, ErrAlreadyRunning
	}
	defer runActive.Store(false)

	h := &Handle{
		host:  host,
		proxy: host.Proxy(),
		timer: newTimerService(),
		log:   cfg.logger,
	}
	if cfg.metricsEnabled {
		h.metrics = &Metrics{}
	}
	processHandle.Store(h)

	if !h.state.TryTransition(stateIdle, stateRunning) {
		return 0, ErrAlreadyRunning
	}

	h.spawnUnchecked(func() {
		main()
		// Main returning is an implicit clean exit; an explicit Exit inside
		// main wins because its request is already queued by the time this
		// one is posted.
		_ = h.proxy.SendUserEvent(exitRequest{code: 0})
	})

	h.log.Info().Log("hostloop: entering host loop")

	err = host.Run(h.onEvent)
	h.state.Store(stateExited)

	if err != nil {
		h.log.Err().Err(err).Log("hostloop: host loop failed")
		return 0, err
	}
	h.log.Info().Int("code", h.exitCode).Log("hostloop: host loop exited")
	return h.exitCode, nil
}

// onEvent is the host run-loop callback: the single-threaded dispatcher
// translating host events into task polls, event-source emissions, timer
// ticks and control-flow updates.
func (h *Handle) onEvent(ev HostEvent, target Target, flow *ControlFlow) {
	if h.loopGID.Load() == 0 {
		h.loopGID.Store(goroutineID())
	}
	h.metrics.addHostEvent()

	switch e := ev.(type) {
	case UserEvent:
		h.onUserEvent(e.Payload, target, flow)

	case ResumedEvent:
		var unit struct{}
		h.resumed.Emit(&unit)

	case SuspendedEvent:
		var unit struct{}
		h.suspended.Emit(&unit)

	case WindowHostEvent:
		h.window.Emit(&e)

	case DeviceHostEvent:
		h.device.Emit(&e)

	case RedrawRequestedEvent:
		id := e.Window
		h.redraw.Emit(&id)

	case AboutToWaitEvent:
		now := h.timer.now()
		h.metrics.addTimerWakes(h.timer.tick(now))
		if flow.Mode == ModeExit {
			// Never downgrade a requested exit to a wait.
			return
		}
		if next, ok := h.timer.nextExpiration(); ok {
			if next <= now {
				flow.SetPoll()
			} else {
				flow.SetWaitUntil(time.Duration(next-now) * time.Millisecond)
			}
		} else {
			flow.SetWait()
		}
	}
}

// onUserEvent dispatches a proxy-injected payload.
func (h *Handle) onUserEvent(payload any, target Target, flow *ControlFlow) {
	h.metrics.addUserEvent()
	switch u := payload.(type) {
	case runnable:
		h.runTask(u.t, target)

	case wakeSignal:
		// No effect beyond unblocking the host's wait state.

	case exitRequest:
		h.exitCode = u.code
		flow.SetExit(u.code)

	default:
		h.log.Warning().
			Any("payload", payload).
			Log("hostloop: unrecognized user event")
	}
}

// runTask polls t once on the host flow of control: it hands the baton to
// the task goroutine and blocks until the task parks or finishes. The host
// target is scoped to the poll so code inside the task (window construction,
// for example) can reach it via [WithTarget].
func (h *Handle) runTask(t *task, target Target) {
	if t.completedSeen {
		// Stale poll for a finished task; nothing to resume.
		return
	}
	h.metrics.addTaskPoll()

	h.target = target
	h.current.Store(t)

	if !t.started {
		t.started = true
		go t.body()
	} else {
		t.resume <- struct{}{}
	}
	<-t.yield

	h.current.Store(nil)
	h.target = nil

	if t.finished {
		t.completedSeen = true
		t.complete()
	}
}
