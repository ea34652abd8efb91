package engine

import (
	"context"
	"iter"
	"slices"
	"strings"

	"github.com/lazypower/attention/internal/budget"
)

// Premise is what a fired concept hands to the deriver: the concept, the
// task link taken out of it and, when the concept has any, a term link.
type Premise struct {
	Concept  *Concept
	TaskLink *TaskLink
	TermLink *TermLink
	Time     int64
}

// Task is the premise's task.
func (p Premise) Task() *Task { return p.TaskLink.Task }

// Deriver produces new tasks from a premise. The sequence is consumed on
// the scheduler's worker and may be abandoned early.
type Deriver interface {
	Derive(ctx context.Context, p Premise) (iter.Seq[*Task], error)
}

// DeriverFunc adapts a function to Deriver.
type DeriverFunc func(ctx context.Context, p Premise) (iter.Seq[*Task], error)

func (f DeriverFunc) Derive(ctx context.Context, p Premise) (iter.Seq[*Task], error) {
	return f(ctx, p)
}

// Rule is one named derivation step.
type Rule struct {
	Name  string
	Apply func(Premise) iter.Seq[*Task]
}

// RuleSet is an immutable, ordered set of rules. Build it once with
// NewRuleSet and share it; nothing can add rules afterwards.
type RuleSet struct {
	rules []Rule
}

var _ Deriver = (*RuleSet)(nil)

// NewRuleSet builds a RuleSet. Rules without an Apply func are skipped.
func NewRuleSet(rules ...Rule) *RuleSet {
	rs := &RuleSet{}
	for _, r := range rules {
		if r.Apply != nil {
			rs.rules = append(rs.rules, r)
		}
	}
	return rs
}

// DefaultRules is the demonstration rule set: Decompose and Associate.
func DefaultRules() *RuleSet {
	return NewRuleSet(Decompose, Associate)
}

func (rs *RuleSet) Len() int { return len(rs.rules) }

// Names lists the rule names in application order.
func (rs *RuleSet) Names() []string {
	names := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		names[i] = r.Name
	}
	return names
}

// Derive chains every rule's output lazily.
func (rs *RuleSet) Derive(ctx context.Context, p Premise) (iter.Seq[*Task], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func(yield func(*Task) bool) {
		for _, r := range rs.rules {
			for t := range r.Apply(p) {
				if !yield(t) {
					return
				}
			}
		}
	}, nil
}

// Compound terms join their components with " & ".
const compoundSep = "&"

// Components splits a compound term. An atomic term yields itself.
func Components(term string) []string {
	parts := strings.Split(term, compoundSep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Compound joins terms into the canonical compound: sorted, deduplicated.
func Compound(terms ...string) string {
	parts := slices.Clone(terms)
	slices.Sort(parts)
	parts = slices.Compact(parts)
	return strings.Join(parts, " "+compoundSep+" ")
}

func derivedBudget(b budget.Budget, factor float64) budget.Budget {
	return budget.New(b.Priority*factor, b.Durability*factor, b.Quality)
}

// Decompose derives each component of a compound task.
var Decompose = Rule{
	Name: "decompose",
	Apply: func(p Premise) iter.Seq[*Task] {
		return func(yield func(*Task) bool) {
			task := p.Task()
			parts := Components(task.Term)
			if len(parts) < 2 {
				return
			}
			b := derivedBudget(task.b, 0.9)
			for _, part := range parts {
				if !yield(NewTask(part, task.Term, b)) {
					return
				}
			}
		}
	},
}

// Associate joins two linked atomic terms into a compound.
var Associate = Rule{
	Name: "associate",
	Apply: func(p Premise) iter.Seq[*Task] {
		return func(yield func(*Task) bool) {
			task := p.Task()
			if p.TermLink == nil || p.TermLink.Target == task.Term {
				return
			}
			if len(Components(task.Term)) != 1 || len(Components(p.TermLink.Target)) != 1 {
				return
			}
			b := derivedBudget(task.b, 0.8*p.TermLink.b.Priority)
			yield(NewTask(Compound(task.Term, p.TermLink.Target), task.Term, b))
		}
	},
}
