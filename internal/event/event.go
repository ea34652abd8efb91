// Package event is the in-process notification bus between the scheduler,
// the reasoning memory and whoever is watching them.
package event

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies an event. The set is closed; every kind has a slot in
// the Bus dispatch table.
type Kind int

const (
	CycleStart Kind = iota
	CycleEnd
	Input
	Output
	Error
	Lag
	ConceptCreated
	ConceptForgotten
	Reset
	numKinds
)

var kindNames = [numKinds]string{
	CycleStart:       "cycle.start",
	CycleEnd:         "cycle.end",
	Input:            "input",
	Output:           "output",
	Error:            "error",
	Lag:              "lag",
	ConceptCreated:   "concept.created",
	ConceptForgotten: "concept.forgotten",
	Reset:            "reset",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds returns every event kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// Event is one notification. Time is the clock time it was emitted at.
type Event struct {
	Kind    Kind
	Time    int64
	Payload any
}

// Handler receives events. Handlers run on the emitting goroutine, which is
// normally the scheduler's worker, and must not block.
type Handler func(Event)

// Bus dispatches events to the handlers registered for their kind.
type Bus struct {
	handlers [numKinds]List[Handler]
}

// NewBus returns an empty Bus.
func NewBus() *Bus { return &Bus{} }

// On registers h for kind and returns a function that unregisters it.
// Registering for an unknown kind is a no-op.
func (b *Bus) On(kind Kind, h Handler) (off func()) {
	if kind < 0 || kind >= numKinds {
		return func() {}
	}
	id := uuid.NewString()
	b.handlers[kind].Add(id, h)
	return func() { b.handlers[kind].Remove(id) }
}

// Has reports whether anyone listens for kind, so emitters can skip
// building expensive payloads.
func (b *Bus) Has(kind Kind) bool {
	return kind >= 0 && kind < numKinds && b.handlers[kind].Len() > 0
}

// Emit delivers e to the handlers registered when the call started. A
// handler that panics does not stop delivery to the rest; the panics come
// back joined in the returned error.
func (b *Bus) Emit(e Event) error {
	if e.Kind < 0 || e.Kind >= numKinds {
		return nil
	}
	var errs []error
	for _, h := range b.handlers[e.Kind].Snapshot() {
		if err := deliver(h, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliver(h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s handler panic: %v", e.Kind, r)
		}
	}()
	h(e)
	return nil
}
