package hostloop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitPred(*struct{}) (struct{}, bool) { return struct{}{}, true }

func TestRun_ExecutorPanicsBeforeFirstRun(t *testing.T) {
	if loadHandle() != nil {
		t.Skip("a runtime already ran in this process")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected Executor to panic before Run")
		}
	}()
	Executor()
}

// Scenario: a task awaits the resume transition once, observes its
// completion value, and exits cleanly.
func TestRun_SingleShotResume(t *testing.T) {
	host := NewSimHost()

	var got int
	code, err := Run(host, func() {
		sub := Once(Resumed(), func(*struct{}) (int, bool) { return 1, true })
		// Inject after subscribing; the event is delivered once this task
		// parks.
		require.NoError(t, host.Resume())
		got = sub.Await()
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, got)
}

// Scenario: two concurrent timers wake in deadline order regardless of
// spawn order.
func TestRun_TwoConcurrentTimers(t *testing.T) {
	host := NewSimHost()

	var order []string
	code, err := Run(host, func() {
		a := Spawn(func() struct{} {
			Sleep(200 * time.Millisecond)
			order = append(order, "A")
			return struct{}{}
		})
		b := Spawn(func() struct{} {
			Sleep(100 * time.Millisecond)
			order = append(order, "B")
			return struct{}{}
		})
		_, _ = a.Join()
		_, _ = b.Join()
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"B", "A"}, order)
}

// Scenario: a task loops subscribing to the device source and observes an
// emitted sequence exactly once each, in order.
func TestRun_DeviceEventLoop(t *testing.T) {
	host := NewSimHost()

	var seen []DeviceEvent
	code, err := Run(host, func() {
		for i := 0; i < 3; i++ {
			sub := On(Device(), func(e *DeviceHostEvent) (DeviceEvent, bool) {
				return *e.Event, true
			})
			require.NoError(t, host.SendDeviceEvent(1, &DeviceEvent{
				Kind:    DeviceKey,
				KeyCode: uint32(40 + i),
				Pressed: true,
			}))
			seen = append(seen, sub.Await())
		}
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	require.Len(t, seen, 3)
	for i, ev := range seen {
		assert.Equal(t, uint32(40+i), ev.KeyCode)
		assert.Equal(t, DeviceKey, ev.Kind)
	}
}

// Scenario: a never-completing listener is cancelled; emitting afterwards
// must neither invoke it nor leave it linked.
func TestRun_DroppedListener(t *testing.T) {
	host := NewSimHost()

	var calls atomic.Int32
	var countAfterCancel int
	code, err := Run(host, func() {
		sub := Once(Window(), func(*WindowHostEvent) (struct{}, bool) {
			calls.Add(1)
			return struct{}{}, false
		})

		// Cancellation composed externally, in place of a timeout wrapper.
		Sleep(10 * time.Millisecond)
		sub.Cancel()
		countAfterCancel = Window().ListenerCount()

		require.NoError(t, host.SendWindowEvent(1, &WindowEvent{Kind: WindowCloseRequested}))
		Sleep(10 * time.Millisecond)
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 0, countAfterCancel)
	assert.Equal(t, int32(0), calls.Load(), "predicate ran after cancellation")
}

// Scenario: spawning from a foreign goroutine runs the task on the host
// flow of control within a bounded number of host iterations.
func TestRun_SpawnFromForeignGoroutine(t *testing.T) {
	host := NewSimHost()

	var sawTarget atomic.Bool
	code, err := Run(host, func() {
		sub := Once(Resumed(), unitPred)
		go func() {
			Spawn(func() struct{} {
				// WithTarget panics off the host flow; reaching the flag
				// proves the task body runs on it.
				WithTarget(func(Target) {})
				sawTarget.Store(true)
				_ = host.Resume()
				return struct{}{}
			})
		}()
		sub.Await()
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.True(t, sawTarget.Load())
}

// Scenario: exit terminates the loop with the requested code regardless of
// remaining scheduled tasks.
func TestRun_ExitTerminatesLoop(t *testing.T) {
	host := NewSimHost()

	code, err := Run(host, func() {
		Spawn(func() struct{} {
			Sleep(time.Hour)
			return struct{}{}
		})
		Spawn(func() struct{} {
			Sleep(time.Hour)
			return struct{}{}
		})
		Exit(7)
	})

	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestRun_MainReturnImpliesExitZero(t *testing.T) {
	host := NewSimHost()
	ran := false
	code, err := Run(host, func() { ran = true })
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.True(t, ran)
}

// A timer created from a foreign goroutine wakes a suspended host in
// bounded time, even though the host was waiting on a much later deadline.
func TestRun_HostWakesOnNewEarlierDeadline(t *testing.T) {
	host := NewSimHost()

	var elapsed time.Duration
	woke := make(chan struct{})
	code, err := Run(host, func() {
		start := time.Now()
		go func() {
			time.Sleep(30 * time.Millisecond)
			f := Wait(20 * time.Millisecond)
			f.Await()
			elapsed = time.Since(start)
			close(woke)
		}()

		Sleep(500 * time.Millisecond)
		<-woke // synchronize before reading elapsed
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Less(t, elapsed, 300*time.Millisecond,
		"foreign timer did not wake the suspended host promptly")
}

func TestRun_TaskPanicObservedByJoin(t *testing.T) {
	host := NewSimHost()

	var joinErr error
	code, err := Run(host, func() {
		task := Spawn(func() int {
			panic("boom")
		})
		_, joinErr = task.Join()
		// The loop survived the panic.
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	var pe PanicError
	require.ErrorAs(t, joinErr, &pe)
	assert.Equal(t, "boom", pe.Value)
}

func TestRun_JoinReturnsResult(t *testing.T) {
	host := NewSimHost()

	var got string
	code, err := Run(host, func() {
		task := Spawn(func() string {
			Sleep(5 * time.Millisecond)
			return "done"
		})
		v, err := task.Join()
		require.NoError(t, err)
		got = v
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "done", got)
}

func TestRun_JoinFromForeignGoroutine(t *testing.T) {
	host := NewSimHost()

	got := make(chan int, 1)
	code, err := Run(host, func() {
		task := Spawn(func() int { return 11 })
		ready := make(chan struct{})
		go func() {
			v, err := task.Join()
			if err == nil {
				got <- v
			}
			close(ready)
		}()
		sub := Once(Resumed(), unitPred)
		go func() {
			<-ready
			_ = host.Resume()
		}()
		sub.Await()
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	require.Equal(t, 11, <-got)
}

func TestRun_SpawnLocalPanicsOffHostFlow(t *testing.T) {
	host := NewSimHost()

	panicked := make(chan bool, 1)
	code, err := Run(host, func() {
		sub := Once(Resumed(), unitPred)
		go func() {
			defer func() {
				panicked <- recover() != nil
				_ = host.Resume()
			}()
			SpawnLocal(func() struct{} { return struct{}{} })
		}()
		sub.Await()
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.True(t, <-panicked)
}

func TestRun_SpawnLocalAllowedOnTask(t *testing.T) {
	host := NewSimHost()

	var ran bool
	code, err := Run(host, func() {
		task := SpawnLocal(func() struct{} {
			ran = true
			return struct{}{}
		})
		_, _ = task.Join()
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.True(t, ran)
}

func TestRun_WithTargetPanicsOffHostFlow(t *testing.T) {
	host := NewSimHost()

	panicked := make(chan bool, 1)
	code, err := Run(host, func() {
		sub := Once(Resumed(), unitPred)
		go func() {
			defer func() {
				panicked <- recover() != nil
				_ = host.Resume()
			}()
			WithTarget(func(Target) {})
		}()
		sub.Await()
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.True(t, <-panicked)
}

func TestRun_WindowConstructionAndRedraw(t *testing.T) {
	host := NewSimHost()

	var redrawn WindowID
	code, err := Run(host, func() {
		w, err := BuildWindow(WindowConfig{Title: "demo"})
		require.NoError(t, err)
		require.NotZero(t, w.ID())

		sub := Once(RedrawRequested(), func(id *WindowID) (WindowID, bool) {
			return *id, true
		})
		w.RequestRedraw()
		redrawn = sub.Await()
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.NotZero(t, redrawn)
}

func TestRun_WindowCloseRequested(t *testing.T) {
	host := NewSimHost()

	var closedWindow WindowID
	code, err := Run(host, func() {
		w, err := CreateWindow()
		require.NoError(t, err)

		sub := Once(Window(), func(e *WindowHostEvent) (WindowID, bool) {
			if e.Event.Kind != WindowCloseRequested {
				return 0, false
			}
			return e.Window, true
		})
		require.NoError(t, host.SendWindowEvent(w.ID(), &WindowEvent{Kind: WindowCloseRequested}))
		closedWindow = sub.Await()
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, WindowID(1), closedWindow)
}

func TestRun_SuspendedSource(t *testing.T) {
	host := NewSimHost()

	var suspends int
	code, err := Run(host, func() {
		sub := Once(Suspended(), unitPred)
		require.NoError(t, host.Suspend())
		sub.Await()
		suspends++
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, suspends)
}

func TestRun_SequentialRuntimes(t *testing.T) {
	for i := 0; i < 2; i++ {
		host := NewSimHost()
		code, err := Run(host, func() { Exit(3) })
		require.NoError(t, err)
		require.Equal(t, 3, code)
	}
}

func TestRun_ConcurrentRunRejected(t *testing.T) {
	host := NewSimHost()

	var second error
	code, err := Run(host, func() {
		sub := Once(Resumed(), unitPred)
		go func() {
			_, second = Run(NewSimHost(), func() {})
			_ = host.Resume()
		}()
		sub.Await()
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	require.ErrorIs(t, second, ErrAlreadyRunning)
}

func TestRun_WaitDeadline(t *testing.T) {
	host := NewSimHost()

	var waited time.Duration
	code, err := Run(host, func() {
		start := time.Now()
		WaitDeadline(Now() + 50).Await()
		waited = time.Since(start)
		Exit(0)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.GreaterOrEqual(t, waited, 50*time.Millisecond)
}

func TestRun_MetricsCounters(t *testing.T) {
	host := NewSimHost()

	code, err := Run(host, func() {
		task := Spawn(func() struct{} {
			Sleep(5 * time.Millisecond)
			return struct{}{}
		})
		_, _ = task.Join()
		Exit(0)
	}, WithMetrics(true))

	require.NoError(t, err)
	require.Equal(t, 0, code)

	snap := Executor().Metrics()
	// Main task plus one spawned task.
	assert.Equal(t, uint64(2), snap.TasksSpawned)
	assert.NotZero(t, snap.TaskPolls)
	assert.NotZero(t, snap.HostEvents)
	assert.NotZero(t, snap.UserEvents)
	assert.NotZero(t, snap.TimerWakes)
}

func TestRun_MetricsDisabledZeroSnapshot(t *testing.T) {
	host := NewSimHost()
	code, err := Run(host, func() { Exit(0) })
	require.NoError(t, err)
	require.Equal(t, 0, code)
	assert.Equal(t, MetricsSnapshot{}, Executor().Metrics())
}
