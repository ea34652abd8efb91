package channel

import (
	"fmt"
	"io"
	"sync"
)

// Writer is an output that writes each line to w.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// NextOutput writes lines. After the first write error it drops output.
func (w *Writer) NextOutput(lines []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w.w, line); err != nil {
			w.err = fmt.Errorf("write output: %w", err)
			return
		}
	}
}

// Err returns the write error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Ring is an output that keeps the most recent lines in memory.
type Ring struct {
	mu    sync.Mutex
	buf   []string
	start int
	n     int
	total int64
}

// NewRing creates a Ring holding up to capacity lines.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]string, capacity)}
}

func (r *Ring) NextOutput(lines []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range lines {
		end := (r.start + r.n) % len(r.buf)
		r.buf[end] = line
		if r.n < len(r.buf) {
			r.n++
		} else {
			r.start = (r.start + 1) % len(r.buf)
		}
		r.total++
	}
}

// Lines returns up to limit of the most recent lines, oldest first. A limit
// of zero or less returns everything held.
func (r *Ring) Lines(limit int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.n
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]string, 0, n)
	for i := r.n - n; i < r.n; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// Total returns how many lines were ever written.
func (r *Ring) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Func adapts a function to an output.
type Func func(lines []string)

func (f Func) NextOutput(lines []string) { f(lines) }
