package p100protocol

// eventQueue hands values to a callback on its own goroutine. push never
// blocks; when the callback falls behind, values are dropped.
type eventQueue[T any] struct {
	fn      func(T)
	events  chan T
	done    chan struct{}
	dropped int
}

func newEventQueue[T any](fn func(T), size int) *eventQueue[T] {
	q := &eventQueue[T]{
		fn:     fn,
		events: make(chan T, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue[T]) run() {
	defer close(q.done)
	for ev := range q.events {
		q.fn(ev)
	}
}

// push queues ev without blocking. Callers hold Connection.mu so push
// never races with stop.
func (q *eventQueue[T]) push(ev T) bool {
	select {
	case q.events <- ev:
		return true
	default:
		q.dropped++
		return false
	}
}

// stop ends delivery after the queued values have been handed to fn.
func (q *eventQueue[T]) stop() {
	close(q.events)
}
