// Structured logging integration for the hostloop runtime.
//
// The runtime logs through logiface, the same facade used across this family
// of modules, configured per Run via WithLogger. There is deliberately no
// package-global logger: the runtime handle is already the process singleton,
// and logging follows its lifecycle.
//
// All log sites tolerate a nil logger (logiface builders no-op on nil), so
// the unconfigured cost is a pointer load per site.

package hostloop

import (
	"github.com/joeycumines/logiface"
)

// LoggerType is the generic logiface logger accepted by [WithLogger]. Obtain
// one from a typed logger via its Logger method, e.g. with stumpy or any
// other logiface backend:
//
//	typed := stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)))
//	code, err := hostloop.Run(host, mainTask, hostloop.WithLogger(typed.Logger()))
type LoggerType = *logiface.Logger[logiface.Event]
