package hostloop

// Window is a host window as seen by the runtime: an identity plus a redraw
// feedback path. Concrete behavior belongs to the host.
type Window interface {
	// ID returns the host-assigned window identity, matching the WindowID
	// carried by window and redraw host events.
	ID() WindowID
	// RequestRedraw asks the host to schedule a redraw, surfacing later as a
	// RedrawRequestedEvent.
	RequestRedraw()
}

// WindowConfig carries window construction parameters.
type WindowConfig struct {
	Title  string
	Width  uint32
	Height uint32
}

// WindowFactory is the window-construction capability of a host [Target].
// Hosts that can create windows implement it on the target they pass to the
// run-loop callback.
type WindowFactory interface {
	CreateWindow(cfg WindowConfig) (Window, error)
}

// BuildWindow creates a window from cfg using the scoped host target. Like
// [WithTarget], it must be called during a task poll; it returns
// [ErrNoWindowFactory] if the host cannot create windows.
func BuildWindow(cfg WindowConfig) (Window, error) {
	var (
		w   Window
		err error
	)
	WithTarget(func(target Target) {
		f, ok := target.(WindowFactory)
		if !ok {
			err = ErrNoWindowFactory
			return
		}
		w, err = f.CreateWindow(cfg)
	})
	return w, err
}

// CreateWindow is [BuildWindow] with default configuration.
func CreateWindow() (Window, error) {
	return BuildWindow(WindowConfig{})
}
