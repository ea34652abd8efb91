package event

import (
	"fmt"
	"runtime"
	"slices"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAddRemove(t *testing.T) {
	var l List[int]
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Snapshot())

	l.Add("a", 1)
	l.Add("b", 2)
	l.Add("c", 3)
	l.Add("b", 20) // replaces and moves to the end

	if diff := cmp.Diff([]int{1, 3, 20}, l.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"a", "c", "b"}, l.IDs())

	assert.True(t, l.Remove("c"))
	assert.False(t, l.Remove("c"))
	assert.Equal(t, []int{1, 20}, l.Snapshot())

	assert.Equal(t, 1, l.RemoveFunc(func(v int) bool { return v > 10 }))
	assert.Equal(t, []int{1}, l.Snapshot())
	assert.Equal(t, 0, l.RemoveFunc(func(int) bool { return false }))

	l.Clear()
	assert.Equal(t, 0, l.Len())
}

func TestListSnapshotIsStableDuringMutation(t *testing.T) {
	var l List[int]
	for i := 0; i < 5; i++ {
		l.Add(fmt.Sprint(i), i)
	}

	var seen []int
	for _, v := range l.Snapshot() {
		seen = append(seen, v)
		// mutations during iteration are invisible to this pass
		l.Add(fmt.Sprint(100+v), 100+v)
		l.Remove(fmt.Sprint(v))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
	assert.Equal(t, []int{100, 101, 102, 103, 104}, l.Snapshot())
}

func TestListConcurrentReadersAndWriters(t *testing.T) {
	var l List[int]
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("%d-%d", w, i)
				l.Add(id, i)
				if i%2 == 0 {
					l.Remove(id)
				}
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				snap := l.Snapshot()
				want := slices.Clone(snap)
				runtime.Gosched()
				if !slices.Equal(want, snap) {
					t.Errorf("published snapshot changed under a reader")
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4*100, l.Len())
}

func TestBusDispatchesByKind(t *testing.T) {
	bus := NewBus()
	var outs, errs []Event
	offOut := bus.On(Output, func(e Event) { outs = append(outs, e) })
	bus.On(Error, func(e Event) { errs = append(errs, e) })

	assert.True(t, bus.Has(Output))
	assert.False(t, bus.Has(Lag))

	bus.Emit(Event{Kind: Output, Time: 3, Payload: "hello"})
	bus.Emit(Event{Kind: Error, Payload: "boom"})
	bus.Emit(Event{Kind: Lag})

	require.Len(t, outs, 1)
	assert.Equal(t, int64(3), outs[0].Time)
	assert.Equal(t, "hello", outs[0].Payload)
	require.Len(t, errs, 1)

	offOut()
	bus.Emit(Event{Kind: Output})
	assert.Len(t, outs, 1)
	assert.False(t, bus.Has(Output))
}

func TestBusHandlerCanUnsubscribeItself(t *testing.T) {
	bus := NewBus()
	calls := 0
	var off func()
	off = bus.On(CycleEnd, func(Event) {
		calls++
		off()
	})
	bus.On(CycleEnd, func(Event) { calls += 10 })

	bus.Emit(Event{Kind: CycleEnd})
	bus.Emit(Event{Kind: CycleEnd})
	assert.Equal(t, 21, calls)
}

func TestBusRecoversPanickingHandler(t *testing.T) {
	bus := NewBus()
	var got []int64
	bus.On(CycleStart, func(e Event) {
		if e.Time == 1 {
			panic("boom")
		}
	})
	bus.On(CycleStart, func(e Event) { got = append(got, e.Time) })

	var err error
	require.NotPanics(t, func() { err = bus.Emit(Event{Kind: CycleStart, Time: 1}) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle.start handler panic: boom")

	assert.NoError(t, bus.Emit(Event{Kind: CycleStart, Time: 2}))
	assert.Equal(t, []int64{1, 2}, got)
}

func TestBusIgnoresUnknownKinds(t *testing.T) {
	bus := NewBus()
	off := bus.On(Kind(99), func(Event) { t.Fatal("called") })
	off()
	bus.Emit(Event{Kind: Kind(-1)})
	assert.False(t, bus.Has(Kind(99)))
}

func TestKindNames(t *testing.T) {
	assert.Len(t, Kinds(), int(numKinds))
	for _, k := range Kinds() {
		assert.NotEmpty(t, kindNames[k], "kind %d unnamed", int(k))
	}
	assert.Equal(t, "concept.forgotten", ConceptForgotten.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
