package channel

import (
	"errors"
	"sync"
)

// ErrClosed is returned when pushing to a closed Queue.
var ErrClosed = errors.New("channel closed")

// Queue is an input fed from other goroutines, such as HTTP handlers.
// Lines are perceived on the worker, one per NextInput call.
type Queue struct {
	sink Sink

	mu     sync.Mutex
	lines  []string
	closed bool
}

// NewQueue creates an open Queue.
func NewQueue(sink Sink) *Queue {
	return &Queue{sink: sink}
}

// Push appends lines to the queue.
func (q *Queue) Push(lines ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.lines = append(q.lines, lines...)
	return nil
}

// Close stops accepting lines. Queued lines are still delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Len returns the number of lines waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines)
}

func (q *Queue) NextInput() bool {
	q.mu.Lock()
	if len(q.lines) == 0 {
		q.mu.Unlock()
		return false
	}
	line := q.lines[0]
	q.lines[0] = ""
	q.lines = q.lines[1:]
	q.mu.Unlock()

	_ = q.sink.Perceive(line)
	return true
}

// Closed reports that the queue is closed and drained.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.lines) == 0
}
