package budget

import (
	"fmt"
	"math"
	"strings"
)

// MergePolicy selects how two budgets for the same key are combined.
// It belongs to the container, not to the item.
type MergePolicy int

const (
	// Plus sums priorities (capped at 1) and averages durability and
	// quality weighted by durability.
	Plus MergePolicy = iota
	// Max takes the component-wise maximum.
	Max
	// Average takes the component-wise mean.
	Average
)

func (p MergePolicy) String() string {
	switch p {
	case Plus:
		return "plus"
	case Max:
		return "max"
	case Average:
		return "average"
	default:
		return fmt.Sprintf("MergePolicy(%d)", int(p))
	}
}

// ParseMergePolicy maps a config name onto a MergePolicy.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plus", "":
		return Plus, nil
	case "max":
		return Max, nil
	case "average", "avg":
		return Average, nil
	default:
		return Plus, fmt.Errorf("unknown merge policy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p MergePolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *MergePolicy) UnmarshalText(text []byte) error {
	v, err := ParseMergePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Merge folds incoming into target in place.
func Merge(target *Budget, incoming Budget, policy MergePolicy) {
	switch policy {
	case Max:
		target.Priority = math.Max(target.Priority, incoming.Priority)
		target.Durability = math.Max(target.Durability, incoming.Durability)
		target.Quality = math.Max(target.Quality, incoming.Quality)
	case Average:
		target.Priority = (target.Priority + incoming.Priority) / 2
		target.Durability = (target.Durability + incoming.Durability) / 2
		target.Quality = (target.Quality + incoming.Quality) / 2
	default:
		d1, d2 := target.Durability, incoming.Durability
		target.Priority = math.Min(1, target.Priority+incoming.Priority)
		if w := d1 + d2; w > 0 {
			target.Durability = (d1*d1 + d2*d2) / w
			target.Quality = (target.Quality*d1 + incoming.Quality*d2) / w
		} else {
			target.Durability = (d1 + d2) / 2
			target.Quality = (target.Quality + incoming.Quality) / 2
		}
	}
	target.Clamp()
}
