package channel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/attention/internal/scheduler"
)

var (
	_ scheduler.Input  = (*Reader)(nil)
	_ scheduler.Input  = (*Queue)(nil)
	_ scheduler.Output = (*Writer)(nil)
	_ scheduler.Output = (*Ring)(nil)
	_ scheduler.Output = Func(nil)
)

type recorder struct {
	mu    sync.Mutex
	lines []string
	fail  string
}

func (r *recorder) Perceive(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if line == r.fail {
		return errors.New("bad line")
	}
	return nil
}

func TestReaderOneLinePerCall(t *testing.T) {
	sink := &recorder{fail: "broken"}
	r := NewReader(strings.NewReader("bird\n\n// comment\n  broken  \ncat 0.5\n"), sink)

	assert.True(t, r.NextInput())
	assert.Equal(t, []string{"bird"}, sink.lines)
	assert.False(t, r.Closed())

	assert.True(t, r.NextInput(), "rejected lines still count as input")
	assert.True(t, r.NextInput())
	assert.Equal(t, []string{"bird", "broken", "cat 0.5"}, sink.lines)

	assert.False(t, r.NextInput())
	assert.True(t, r.Closed())
	assert.False(t, r.NextInput())
	assert.Equal(t, 3, r.Lines())
	assert.NoError(t, r.Err())
}

func TestReaderLineTooLong(t *testing.T) {
	sink := &recorder{}
	r := NewReader(strings.NewReader(strings.Repeat("x", maxLine+1)), sink)
	assert.False(t, r.NextInput())
	assert.True(t, r.Closed())
	assert.Error(t, r.Err())
	assert.Empty(t, sink.lines)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o644))

	sink := &recorder{}
	r, err := OpenFile(path, sink)
	require.NoError(t, err)
	for r.NextInput() {
	}
	assert.Equal(t, []string{"a", "b"}, sink.lines)
	assert.True(t, r.Closed())

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing"), sink)
	assert.Error(t, err)
}

type closeCounter struct {
	*strings.Reader
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestReaderCloseBeforeDrained(t *testing.T) {
	src := &closeCounter{Reader: strings.NewReader("a\nb\nc\n")}
	sink := &recorder{}
	r := NewReader(src, sink)
	r.closer = src

	require.True(t, r.NextInput())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, src.closes)
	assert.True(t, r.Closed())
	assert.False(t, r.NextInput())
	assert.Equal(t, []string{"a"}, sink.lines)

	require.NoError(t, r.Close())
	assert.Equal(t, 1, src.closes, "second close is a no-op")
}

func TestReaderCloseAfterDrained(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))
	r, err := OpenFile(path, &recorder{})
	require.NoError(t, err)
	for r.NextInput() {
	}
	assert.NoError(t, r.Close())
}

func TestQueue(t *testing.T) {
	sink := &recorder{}
	q := NewQueue(sink)

	assert.False(t, q.NextInput())
	assert.False(t, q.Closed())

	require.NoError(t, q.Push("a", "b"))
	assert.Equal(t, 2, q.Len())
	assert.True(t, q.NextInput())

	q.Close()
	assert.ErrorIs(t, q.Push("c"), ErrClosed)
	assert.False(t, q.Closed(), "closed queue still drains")
	assert.True(t, q.NextInput())
	assert.True(t, q.Closed())
	assert.Equal(t, []string{"a", "b"}, sink.lines)
}

func TestPump(t *testing.T) {
	sink := &recorder{}
	q := NewQueue(sink)
	require.NoError(t, Pump(context.Background(), strings.NewReader("a\n\nb\n"), q))
	assert.Equal(t, 2, q.Len())
	for q.NextInput() {
	}
	assert.True(t, q.Closed())
	assert.Equal(t, []string{"a", "b"}, sink.lines)
}

func TestPumpCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := NewQueue(&recorder{})
	assert.ErrorIs(t, Pump(ctx, strings.NewReader("a\n"), q), context.Canceled)
	assert.True(t, q.Closed())
}

type failingWriter struct{ n int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.n++
	return 0, errors.New("disk full")
}

func TestWriter(t *testing.T) {
	var sb strings.Builder
	w := NewWriter(&sb)
	w.NextOutput([]string{"IN: a", "OUT: b"})
	assert.Equal(t, "IN: a\nOUT: b\n", sb.String())
	assert.NoError(t, w.Err())

	fw := &failingWriter{}
	w = NewWriter(fw)
	w.NextOutput([]string{"x", "y"})
	w.NextOutput([]string{"z"})
	assert.Error(t, w.Err())
	assert.Equal(t, 1, fw.n)
}

func TestRing(t *testing.T) {
	r := NewRing(3)
	assert.Empty(t, r.Lines(0))

	r.NextOutput([]string{"1", "2"})
	assert.Equal(t, []string{"1", "2"}, r.Lines(0))

	r.NextOutput([]string{"3", "4", "5"})
	assert.Equal(t, []string{"3", "4", "5"}, r.Lines(0))
	assert.Equal(t, []string{"4", "5"}, r.Lines(2))
	assert.Equal(t, []string{"3", "4", "5"}, r.Lines(10))
	assert.Equal(t, int64(5), r.Total())
}

func TestFunc(t *testing.T) {
	var got []string
	Func(func(lines []string) { got = append(got, lines...) }).NextOutput([]string{"a"})
	assert.Equal(t, []string{"a"}, got)
}
