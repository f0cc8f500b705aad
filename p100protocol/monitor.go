package p100protocol

import "time"

// monitorQueueSize bounds the number of undelivered monitor events.
const monitorQueueSize = 256

// MonitorEvent is one line seen by the monitor tap.
type MonitorEvent struct {
	Time      time.Time
	Direction Direction
	Line      string
}

// MonitorFunc observes every transmitted and received line. It runs on its
// own goroutine and never blocks the connection; when it falls behind,
// events are dropped.
type MonitorFunc func(event MonitorEvent)

// monitorTap delivers events to a MonitorFunc from a dedicated goroutine.
type monitorTap struct {
	*eventQueue[MonitorEvent]
}

func newMonitorTap(fn MonitorFunc) *monitorTap {
	return &monitorTap{newEventQueue[MonitorEvent](fn, monitorQueueSize)}
}

// emit stamps and queues one line without blocking.
func (m *monitorTap) emit(dir Direction, line string) bool {
	return m.push(MonitorEvent{Time: time.Now(), Direction: dir, Line: line})
}
