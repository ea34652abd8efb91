package engine

import (
	"fmt"

	"github.com/lazypower/attention/internal/bag"
	"github.com/lazypower/attention/internal/budget"
)

// Task is a term the memory has been asked to think about, either perceived
// or derived from a parent term.
type Task struct {
	Term    string
	Parent  string
	Created int64
	b       budget.Budget
}

// NewTask creates a task with a clamped copy of b.
func NewTask(term, parent string, b budget.Budget) *Task {
	b.Clamp()
	return &Task{Term: term, Parent: parent, b: b}
}

func (t *Task) Key() string            { return t.Term }
func (t *Task) Budget() *budget.Budget { return &t.b }

func (t *Task) String() string {
	if t.Parent != "" {
		return fmt.Sprintf("%s <- %s %s", t.Term, t.Parent, t.b)
	}
	return fmt.Sprintf("%s %s", t.Term, t.b)
}

// TaskLink ties a task to the concept named by its term.
type TaskLink struct {
	Task *Task
	b    budget.Budget
}

func newTaskLink(t *Task) *TaskLink {
	return &TaskLink{Task: t, b: t.b}
}

func (l *TaskLink) Key() string            { return l.Task.Term }
func (l *TaskLink) Budget() *budget.Budget { return &l.b }

// TermLink points from a concept to a related term.
type TermLink struct {
	Target string
	b      budget.Budget
}

func newTermLink(target string, b budget.Budget) *TermLink {
	b.Clamp()
	return &TermLink{Target: target, b: b}
}

func (l *TermLink) Key() string            { return l.Target }
func (l *TermLink) Budget() *budget.Budget { return &l.b }

// Concept is the unit of attention: one per term, owning bounded bags of the
// tasks that mention it and the terms it is linked to.
type Concept struct {
	Term      string
	Created   int64
	TaskLinks *bag.LevelBag[string, *TaskLink]
	TermLinks *bag.LevelBag[string, *TermLink]
	b         budget.Budget
}

func (c *Concept) Key() string            { return c.Term }
func (c *Concept) Budget() *budget.Budget { return &c.b }

func (c *Concept) String() string {
	return fmt.Sprintf("%s %s", c.Term, c.b)
}
