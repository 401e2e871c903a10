// Package hostloop provides a single-threaded cooperative task runtime
// layered on a foreign windowing event loop (the host), featuring typed
// event multiplexing, host-driven timers, and cross-goroutine task spawning.
//
// # Architecture
//
// The host owns the flow of control: it drives a blocking run-forever loop
// and delivers host events (resume, suspend, window input, device input,
// redraw requests, about-to-wait) to a single callback. [Run] installs that
// callback and turns the loop into a task executor: task continuations run
// on the host flow of control between host-event dispatches, typed
// [EventSource] registries let tasks await host events by predicate, and a
// passive timer service schedules wakeups through the host's
// wait-with-timeout control mode. No background goroutine is required.
//
// Tasks execute run-to-suspension: a task goroutine only runs while the
// loop goroutine is blocked handing it the flow of control, so task code,
// event predicates and timer callbacks never race with one another.
// Wakeups and spawns from other goroutines funnel through the host's
// thread-safe [Proxy] as synthetic user events.
//
// # Event Sources
//
// Each host event kind has a process-wide source, reachable once the
// runtime is up: [Window], [Device], [Resumed], [Suspended],
// [RedrawRequested]. [On] and [Once] register predicate listeners; the
// payload handed to a predicate is borrowed from the host callback frame
// and must not be retained. See [EventSource.Emit] for the contract.
//
// # Thread Safety
//
//   - [Spawn], [Wait], [WaitDeadline] and subscription Await/Cancel are safe
//     from any goroutine
//   - [SpawnLocal] and [WithTarget] are restricted to the host flow of
//     control and panic elsewhere
//   - Event emission and task polling happen only on the host loop goroutine
//
// # Usage
//
//	host := hostloop.NewSimHost()
//
//	code, err := hostloop.Run(host, func() {
//		resumed := hostloop.Once(hostloop.Resumed(), func(*struct{}) (struct{}, bool) {
//			return struct{}{}, true
//		})
//		_ = host.Resume()
//		resumed.Await()
//
//		w, _ := hostloop.CreateWindow()
//		fmt.Println("window", w.ID())
//
//		hostloop.Sleep(100 * time.Millisecond)
//		hostloop.Exit(0)
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	os.Exit(code)
//
// The host contract ([Host], [Proxy], [ControlFlow], [Target]) is small by
// design; [SimHost] is the in-process reference implementation, and bindings
// to real windowing loops implement the same four pieces.
package hostloop
