// Package budget implements the priority/durability/quality triple that
// governs how items compete for space in working memory, and the merge and
// decay arithmetic shared by every container.
package budget

import (
	"fmt"
	"math"
)

// Budget is the selection weight of an item.
//
// Priority is the immediate selection weight, Durability is resistance to
// decay, and Quality is the floor decay relaxes toward. All three stay in
// [0,1].
type Budget struct {
	Priority   float64 `json:"priority" yaml:"priority"`
	Durability float64 `json:"durability" yaml:"durability"`
	Quality    float64 `json:"quality" yaml:"quality"`
}

// New returns a Budget with every component clamped into [0,1].
func New(priority, durability, quality float64) Budget {
	return Budget{
		Priority:   clamp(priority),
		Durability: clamp(durability),
		Quality:    clamp(quality),
	}
}

// Clamp forces every component back into [0,1]. NaN becomes 0.
func (b *Budget) Clamp() {
	b.Priority = clamp(b.Priority)
	b.Durability = clamp(b.Durability)
	b.Quality = clamp(b.Quality)
}

// Summary is the mean of the three components, used for display ranking.
func (b Budget) Summary() float64 {
	return (b.Priority + b.Durability + b.Quality) / 3
}

// AboveThreshold reports whether the summary reaches t.
func (b Budget) AboveThreshold(t float64) bool {
	return b.Summary() >= t
}

func (b Budget) String() string {
	return fmt.Sprintf("$%.2f;%.2f;%.2f$", b.Priority, b.Durability, b.Quality)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
