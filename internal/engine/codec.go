package engine

import (
	"encoding/json"
	"fmt"

	"github.com/lazypower/attention/internal/budget"
)

type linkRecord struct {
	Term   string        `json:"term"`
	Parent string        `json:"parent,omitempty"`
	Budget budget.Budget `json:"budget"`
}

type conceptRecord struct {
	Term      string        `json:"term"`
	Created   int64         `json:"created"`
	Budget    budget.Budget `json:"budget"`
	TaskLinks []linkRecord  `json:"tasklinks,omitempty"`
	TermLinks []linkRecord  `json:"termlinks,omitempty"`
}

// conceptCodec stores a concept together with its links, so a parked
// concept comes back with what it knew.
type conceptCodec struct {
	m *Memory
}

func (conceptCodec) EncodeKey(term string) string { return "concept/" + term }

func (conceptCodec) Encode(c *Concept) ([]byte, error) {
	rec := conceptRecord{Term: c.Term, Created: c.Created, Budget: c.b}
	c.TaskLinks.ForEach(func(l *TaskLink) {
		rec.TaskLinks = append(rec.TaskLinks, linkRecord{Term: l.Task.Term, Parent: l.Task.Parent, Budget: l.b})
	})
	c.TermLinks.ForEach(func(l *TermLink) {
		rec.TermLinks = append(rec.TermLinks, linkRecord{Term: l.Target, Budget: l.b})
	})
	return json.Marshal(rec)
}

func (cc conceptCodec) Decode(data []byte) (*Concept, error) {
	var rec conceptRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal concept: %w", err)
	}
	if rec.Term == "" {
		return nil, fmt.Errorf("unmarshal concept: missing term")
	}
	c := cc.m.newConcept(rec.Term, rec.Budget)
	c.Created = rec.Created
	for _, l := range rec.TaskLinks {
		t := NewTask(l.Term, l.Parent, l.Budget)
		c.TaskLinks.PutIn(&TaskLink{Task: t, b: l.Budget})
	}
	for _, l := range rec.TermLinks {
		c.TermLinks.PutIn(newTermLink(l.Term, l.Budget))
	}
	return c, nil
}
