package hostloop

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// SimHost is an in-process, headless implementation of the [Host] contract.
// It is the reference host: tests and examples run the full runtime against
// it, and embedders can use it wherever a windowing system is absent.
//
// Event queue design: a mutex-guarded slice pair with batch swap. Producers
// append under the lock and nudge a buffered wake channel; the loop swaps
// the active slice for the spare under a single lock acquisition and
// delivers the batch lock-free. The queue is unbounded, so injection never
// drops events, and the swap reuses buffers so steady state does not
// allocate.
type SimHost struct {
	target *SimTarget

	pending []HostEvent
	spare   []HostEvent
	mu      sync.Mutex

	// wakeCh carries at most one pending wake; injections nudge it after
	// appending so a waiting loop always observes the new event.
	wakeCh chan struct{}
	// doneCh is closed when Run returns, releasing blocked injectors.
	doneCh chan struct{}

	running atomic.Bool
	closed  atomic.Bool
}

// NewSimHost returns a ready host. Events may be injected (and user events
// sent through the proxy) before Run; they are delivered once it starts.
func NewSimHost() *SimHost {
	h := &SimHost{
		wakeCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
	h.target = &SimTarget{host: h}
	return h
}

// Proxy returns the host's thread-safe user-event injector.
func (h *SimHost) Proxy() Proxy {
	return simProxy{host: h}
}

// Target returns the host's window target, as passed to run-loop callbacks.
// It implements [WindowFactory].
func (h *SimHost) Target() *SimTarget {
	return h.target
}

// Done returns a channel closed once the loop has exited.
func (h *SimHost) Done() <-chan struct{} {
	return h.doneCh
}

// Inject enqueues a host event from any goroutine. It fails with
// [ErrHostClosed] once the loop has exited.
func (h *SimHost) Inject(ev HostEvent) error {
	h.mu.Lock()
	if h.closed.Load() {
		h.mu.Unlock()
		return ErrHostClosed
	}
	h.pending = append(h.pending, ev)
	h.mu.Unlock()

	select {
	case h.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

// Resume injects a [ResumedEvent].
func (h *SimHost) Resume() error { return h.Inject(ResumedEvent{}) }

// Suspend injects a [SuspendedEvent].
func (h *SimHost) Suspend() error { return h.Inject(SuspendedEvent{}) }

// SendWindowEvent injects a window event record for the given window.
func (h *SimHost) SendWindowEvent(id WindowID, ev *WindowEvent) error {
	return h.Inject(WindowHostEvent{Window: id, Event: ev})
}

// SendDeviceEvent injects a device event record for the given device.
func (h *SimHost) SendDeviceEvent(id DeviceID, ev *DeviceEvent) error {
	return h.Inject(DeviceHostEvent{Device: id, Event: ev})
}

// RequestRedraw injects a redraw request for the given window.
func (h *SimHost) RequestRedraw(id WindowID) error {
	return h.Inject(RedrawRequestedEvent{Window: id})
}

// Run enters the blocking event loop. It delivers queued events in injection
// order, announces [AboutToWaitEvent] whenever the queue drains, and then
// honors the control flow the callback chose: poll again, wait for the next
// injection, or wait with a timeout. Run returns nil once the callback
// requests exit, and [ErrHostRunning] if entered twice.
func (h *SimHost) Run(cb Callback) error {
	if !h.running.CompareAndSwap(false, true) {
		return ErrHostRunning
	}
	defer func() {
		h.mu.Lock()
		h.closed.Store(true)
		h.mu.Unlock()
		close(h.doneCh)
	}()

	var flow ControlFlow
	for {
		// Batch swap: take the whole pending slice under one lock
		// acquisition, deliver without holding it.
		h.mu.Lock()
		jobs := h.pending
		h.pending = h.spare
		h.mu.Unlock()

		for i, ev := range jobs {
			cb(ev, h.target, &flow)
			jobs[i] = nil // Clear for GC
			if flow.Mode == ModeExit {
				return nil
			}
		}
		delivered := len(jobs) > 0
		h.spare = jobs[:0]

		if delivered {
			// Callbacks routinely enqueue follow-up events (task wakeups);
			// re-drain before announcing the wait.
			continue
		}

		cb(AboutToWaitEvent{}, h.target, &flow)
		switch flow.Mode {
		case ModeExit:
			return nil
		case ModePoll:
			runtime.Gosched()
		case ModeWait:
			<-h.wakeCh
		case ModeWaitUntil:
			t := time.NewTimer(flow.Timeout)
			select {
			case <-h.wakeCh:
				t.Stop()
			case <-t.C:
			}
		}
	}
}

// simProxy adapts Inject to the [Proxy] contract.
type simProxy struct {
	host *SimHost
}

func (p simProxy) SendUserEvent(payload any) error {
	return p.host.Inject(UserEvent{Payload: payload})
}

// SimTarget is the host's window target; it hands out [SimWindow] instances.
type SimTarget struct {
	host   *SimHost
	nextID atomic.Uint64
}

// CreateWindow implements [WindowFactory].
func (t *SimTarget) CreateWindow(cfg WindowConfig) (Window, error) {
	return &SimWindow{
		host:  t.host,
		id:    WindowID(t.nextID.Add(1)),
		title: cfg.Title,
	}, nil
}

// SimWindow is a headless window: an identity plus a redraw feedback path.
type SimWindow struct {
	host  *SimHost
	title string
	id    WindowID
}

// ID returns the host-assigned window identity.
func (w *SimWindow) ID() WindowID { return w.id }

// Title returns the title the window was created with.
func (w *SimWindow) Title() string { return w.title }

// RequestRedraw injects a redraw request for this window, mirroring how a
// real host turns a window's redraw ask into a host event.
func (w *SimWindow) RequestRedraw() {
	_ = w.host.RequestRedraw(w.id)
}
