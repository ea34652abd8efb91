package engine

import (
	"context"
	"fmt"

	"github.com/lazypower/attention/internal/bag"
	"github.com/lazypower/attention/internal/budget"
)

// ConceptSummary is the listing view of a concept.
type ConceptSummary struct {
	Term      string        `json:"term"`
	Budget    budget.Budget `json:"budget"`
	TaskLinks int           `json:"tasklinks"`
	TermLinks int           `json:"termlinks"`
}

// LinkView is one task or term link.
type LinkView struct {
	Term   string        `json:"term"`
	Parent string        `json:"parent,omitempty"`
	Budget budget.Budget `json:"budget"`
}

// ConceptDetail is a concept with its links, highest level first.
type ConceptDetail struct {
	ConceptSummary
	Created int64      `json:"created"`
	Tasks   []LinkView `json:"tasks"`
	Links   []LinkView `json:"links"`
}

// Stats summarizes memory occupancy.
type Stats struct {
	Concepts   int   `json:"concepts"`
	Capacity   int   `json:"capacity"`
	Overflowed int   `json:"overflowed"`
	NovelTasks int   `json:"novel_tasks"`
	Levels     []int `json:"levels"`
}

func summarize(c *Concept) ConceptSummary {
	return ConceptSummary{
		Term:      c.Term,
		Budget:    c.b,
		TaskLinks: c.TaskLinks.Size(),
		TermLinks: c.TermLinks.Size(),
	}
}

// Concepts lists up to limit in-memory concepts, highest level first.
// A limit of zero or less lists all of them.
func (m *Memory) Concepts(limit int) []ConceptSummary {
	out := []ConceptSummary{}
	m.concepts.ForEach(func(c *Concept) {
		if limit > 0 && len(out) >= limit {
			return
		}
		out = append(out, summarize(c))
	})
	return out
}

// Concept looks up one concept, promoting it from the overflow store when
// it was parked there. Unknown terms are (nil, nil).
func (m *Memory) Concept(ctx context.Context, term string) (*ConceptDetail, error) {
	var (
		c   *Concept
		ok  bool
		err error
	)
	if cb, isCache := m.concepts.(*bag.CacheBag[string, *Concept]); isCache {
		c, ok, err = cb.Lookup(ctx, term)
		if err != nil {
			return nil, fmt.Errorf("lookup concept %s: %w", term, err)
		}
	} else {
		c, ok = m.concepts.Get(term)
	}
	if !ok {
		return nil, nil
	}

	d := &ConceptDetail{ConceptSummary: summarize(c), Created: c.Created}
	c.TaskLinks.ForEach(func(l *TaskLink) {
		d.Tasks = append(d.Tasks, LinkView{Term: l.Task.Term, Parent: l.Task.Parent, Budget: l.b})
	})
	c.TermLinks.ForEach(func(l *TermLink) {
		d.Links = append(d.Links, LinkView{Term: l.Target, Budget: l.b})
	})
	return d, nil
}

// Stats reports occupancy.
func (m *Memory) Stats() Stats {
	s := Stats{
		Concepts:   m.concepts.Size(),
		Capacity:   m.concepts.Capacity(),
		NovelTasks: m.novel.Size(),
		Levels:     m.concepts.LevelSizes(),
	}
	if cb, ok := m.concepts.(*bag.CacheBag[string, *Concept]); ok {
		s.Overflowed = cb.Overflowed()
	}
	return s
}
