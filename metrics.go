package hostloop

import (
	"sync/atomic"
)

// Metrics tracks runtime counters. Counters are plain atomics so every
// method is safe from any goroutine; a nil *Metrics (metrics disabled) makes
// every recording method a no-op.
type Metrics struct {
	tasksSpawned atomic.Uint64
	taskPolls    atomic.Uint64
	hostEvents   atomic.Uint64
	userEvents   atomic.Uint64
	timerWakes   atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the runtime counters, as
// returned by [Handle.Metrics].
type MetricsSnapshot struct {
	// TasksSpawned counts tasks created by Spawn, SpawnLocal and the main
	// task.
	TasksSpawned uint64
	// TaskPolls counts run-to-suspension resumptions, the initial poll of
	// each task included.
	TaskPolls uint64
	// HostEvents counts every event delivered by the host, user events and
	// about-to-wait hooks included.
	HostEvents uint64
	// UserEvents counts proxy-injected events only.
	UserEvents uint64
	// TimerWakes counts timer waiters retired by ticks.
	TimerWakes uint64
}

func (m *Metrics) addTaskSpawned() {
	if m != nil {
		m.tasksSpawned.Add(1)
	}
}

func (m *Metrics) addTaskPoll() {
	if m != nil {
		m.taskPolls.Add(1)
	}
}

func (m *Metrics) addHostEvent() {
	if m != nil {
		m.hostEvents.Add(1)
	}
}

func (m *Metrics) addUserEvent() {
	if m != nil {
		m.userEvents.Add(1)
	}
}

func (m *Metrics) addTimerWakes(n int) {
	if m != nil && n > 0 {
		m.timerWakes.Add(uint64(n))
	}
}

func (m *Metrics) snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		TasksSpawned: m.tasksSpawned.Load(),
		TaskPolls:    m.taskPolls.Load(),
		HostEvents:   m.hostEvents.Load(),
		UserEvents:   m.userEvents.Load(),
		TimerWakes:   m.timerWakes.Load(),
	}
}
