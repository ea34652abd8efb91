// Package channel provides the scheduler's input and output channels.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Sink consumes perception lines. engine.Memory implements it.
type Sink interface {
	Perceive(line string) error
}

// maxLine bounds a single perception line.
const maxLine = 1024 * 1024

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	return scanner
}

// Reader is an input that perceives one line of r per NextInput call. It
// reads on the caller's goroutine, so it suits files; use Pump for
// terminals and pipes.
type Reader struct {
	sink    Sink
	scanner *bufio.Scanner
	closer  io.Closer
	lines   int
	done    bool
	err     error
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader, sink Sink) *Reader {
	return &Reader{sink: sink, scanner: newScanner(r)}
}

// OpenFile opens path as a Reader. The file is closed once drained.
func OpenFile(path string, sink Sink) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	r := NewReader(f, sink)
	r.closer = f
	return r, nil
}

// NextInput perceives the next non-blank line. A line the sink rejects
// still counts as input; the sink has already reported it.
func (r *Reader) NextInput() bool {
	if r.done {
		return false
	}
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if skip(line) {
			continue
		}
		r.lines++
		_ = r.sink.Perceive(line)
		return true
	}
	if err := r.scanner.Err(); err != nil {
		r.err = fmt.Errorf("scan input: %w", err)
	}
	r.finish()
	return false
}

// Closed reports that the reader hit the end of its input.
func (r *Reader) Closed() bool { return r.done }

// Lines returns how many lines were perceived.
func (r *Reader) Lines() int { return r.lines }

// Err returns the scan error that ended the input, if any.
func (r *Reader) Err() error { return r.err }

// Close ends the input early and releases the underlying file. It is safe
// to call after the reader drained.
func (r *Reader) Close() error {
	r.done = true
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	if err != nil {
		return fmt.Errorf("close input: %w", err)
	}
	return nil
}

func (r *Reader) finish() {
	r.done = true
	if r.closer != nil {
		r.closer.Close()
		r.closer = nil
	}
}

func skip(line string) bool {
	return line == "" || strings.HasPrefix(line, "//")
}

// Pump copies lines from r into q on the calling goroutine until r is
// drained or ctx is done, then closes q.
func Pump(ctx context.Context, r io.Reader, q *Queue) error {
	defer q.Close()
	scanner := newScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if skip(line) {
			continue
		}
		if err := q.Push(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}
