package hostloop

import "time"

// WindowID identifies a host window. Values are assigned by the host and are
// unique for the lifetime of the host loop.
type WindowID uint64

// DeviceID identifies a host input device.
type DeviceID uint64

// WindowEventKind discriminates the variants of a [WindowEvent].
type WindowEventKind uint8

const (
	// WindowCloseRequested indicates the user asked the window to close.
	WindowCloseRequested WindowEventKind = iota + 1
	// WindowResized carries the new inner size in Width and Height.
	WindowResized
	// WindowFocused carries the new focus state in Focused.
	WindowFocused
	// WindowKeyboardInput carries a key transition in KeyCode and Pressed.
	WindowKeyboardInput
)

// WindowEvent is a per-window host event record.
//
// The record is owned by the host stack frame that delivered it. Event-source
// predicates receive it as a mutable borrow and must not retain the pointer
// beyond the predicate call; see [EventSource.Emit].
type WindowEvent struct {
	Kind    WindowEventKind
	Width   uint32
	Height  uint32
	KeyCode uint32
	Focused bool
	Pressed bool
}

// DeviceEventKind discriminates the variants of a [DeviceEvent].
type DeviceEventKind uint8

const (
	// DeviceMouseMotion carries a relative motion delta in DeltaX and DeltaY.
	DeviceMouseMotion DeviceEventKind = iota + 1
	// DeviceButton carries a button transition in Button and Pressed.
	DeviceButton
	// DeviceKey carries a raw key transition in KeyCode and Pressed.
	DeviceKey
)

// DeviceEvent is a raw device host event record. The same borrow contract as
// [WindowEvent] applies.
type DeviceEvent struct {
	Kind    DeviceEventKind
	DeltaX  float64
	DeltaY  float64
	Button  uint32
	KeyCode uint32
	Pressed bool
}

// HostEvent is the sum of events a host delivers to the run-loop callback.
//
// The set mirrors the host contract: lifecycle transitions, per-window and
// per-device input, redraw requests, the about-to-wait hook, and user events
// injected through the [Proxy].
type HostEvent interface{ isHostEvent() }

// ResumedEvent signals that the application gained (or regained) the ability
// to render.
type ResumedEvent struct{}

// SuspendedEvent signals that the application should stop rendering.
type SuspendedEvent struct{}

// WindowHostEvent carries a window event record, borrowed from the host stack
// frame for the duration of the callback.
type WindowHostEvent struct {
	Event  *WindowEvent
	Window WindowID
}

// DeviceHostEvent carries a device event record, borrowed from the host stack
// frame for the duration of the callback.
type DeviceHostEvent struct {
	Event  *DeviceEvent
	Device DeviceID
}

// RedrawRequestedEvent signals that a window should be repainted.
type RedrawRequestedEvent struct {
	Window WindowID
}

// AboutToWaitEvent signals that the host has drained all pending events and
// is about to block. The callback decides how via the [ControlFlow].
type AboutToWaitEvent struct{}

// UserEvent wraps an opaque payload injected through the host's [Proxy]. The
// host ferries the payload without inspecting it.
type UserEvent struct {
	Payload any
}

func (ResumedEvent) isHostEvent()         {}
func (SuspendedEvent) isHostEvent()       {}
func (WindowHostEvent) isHostEvent()      {}
func (DeviceHostEvent) isHostEvent()      {}
func (RedrawRequestedEvent) isHostEvent() {}
func (AboutToWaitEvent) isHostEvent()     {}
func (UserEvent) isHostEvent()            {}

// ControlFlowMode enumerates how the host should behave once the callback
// returns.
type ControlFlowMode uint8

const (
	// ModePoll runs another loop iteration immediately.
	ModePoll ControlFlowMode = iota
	// ModeWait blocks until the next host event arrives.
	ModeWait
	// ModeWaitUntil blocks until the next host event arrives or Timeout
	// elapses, whichever comes first.
	ModeWaitUntil
	// ModeExit terminates the host loop; Run returns after the current
	// callback.
	ModeExit
)

// String returns a human-readable representation of the mode.
func (m ControlFlowMode) String() string {
	switch m {
	case ModePoll:
		return "Poll"
	case ModeWait:
		return "Wait"
	case ModeWaitUntil:
		return "WaitUntil"
	case ModeExit:
		return "Exit"
	default:
		return "Unknown"
	}
}

// ControlFlow is written by the run-loop callback to steer the host. The host
// reads it after every callback invocation; the callback may overwrite it on
// every invocation.
type ControlFlow struct {
	// Timeout is the maximum wait duration; meaningful only in ModeWaitUntil.
	Timeout time.Duration
	// Code is the process exit code; meaningful only in ModeExit.
	Code int
	// Mode selects the host behavior. The zero value is ModePoll.
	Mode ControlFlowMode
}

// SetPoll requests another loop iteration without blocking.
func (f *ControlFlow) SetPoll() {
	f.Mode = ModePoll
	f.Timeout = 0
}

// SetWait requests an indefinite block until the next host event.
func (f *ControlFlow) SetWait() {
	f.Mode = ModeWait
	f.Timeout = 0
}

// SetWaitUntil requests a block bounded by d.
func (f *ControlFlow) SetWaitUntil(d time.Duration) {
	f.Mode = ModeWaitUntil
	f.Timeout = d
}

// SetExit requests loop termination with the given exit code.
func (f *ControlFlow) SetExit(code int) {
	f.Mode = ModeExit
	f.Code = code
}

// Target is the host's window target. It is valid only for the duration of a
// single run-loop callback; see [WithTarget] for the scoped accessor exposed
// to tasks. Hosts that support window construction additionally implement
// [WindowFactory].
type Target interface{}

// Proxy injects synthetic user events into the host loop from any goroutine.
//
// Implementations must be safe for concurrent use and must accept events
// before the host loop starts (such events are delivered once it does).
type Proxy interface {
	// SendUserEvent enqueues payload for delivery as a [UserEvent]. It
	// returns an error if the host loop has already exited.
	SendUserEvent(payload any) error
}

// Callback is the host run-loop callback. The host invokes it serially, on
// the loop goroutine, once per delivered event.
type Callback func(ev HostEvent, target Target, flow *ControlFlow)

// Host is the external windowing event loop the runtime is layered on.
type Host interface {
	// Proxy returns the host's thread-safe user-event injector. It must be
	// callable before Run.
	Proxy() Proxy
	// Run enters the blocking event loop, invoking cb for every event until
	// the callback requests exit. The returned error reports host failure,
	// not the requested exit code.
	Run(cb Callback) error
}
