package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lazypower/attention/internal/budget"
)

// DefaultInputBudget is given to perceived tasks that carry no budget.
var DefaultInputBudget = budget.Budget{Priority: 0.8, Durability: 0.5, Quality: 0.5}

// ParseTask parses one perception line:
//
//	<term> [priority [durability [quality]]]
//	<term> <- <parent> [priority [durability [quality]]]
//	{"term": ..., "parent": ..., "priority": ..., "durability": ..., "quality": ...}
//
// ok is false for blank lines and // comments.
func ParseTask(line string) (task *Task, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "//") {
		return nil, false, nil
	}
	if strings.HasPrefix(line, "{") {
		return parseTaskJSON(line)
	}

	fields := strings.Fields(line)
	var nums []float64
	for len(fields) > 1 && len(nums) < 3 {
		v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			break
		}
		if v < 0 || v > 1 {
			return nil, false, fmt.Errorf("parse %q: budget value %v outside [0,1]", line, v)
		}
		nums = append(nums, v)
		fields = fields[:len(fields)-1]
	}

	b := DefaultInputBudget
	// collected back to front
	for i, v := range nums {
		switch len(nums) - 1 - i {
		case 0:
			b.Priority = v
		case 1:
			b.Durability = v
		case 2:
			b.Quality = v
		}
	}

	term, parent := strings.Join(fields, " "), ""
	if before, after, found := strings.Cut(term, "<-"); found {
		term, parent = strings.TrimSpace(before), strings.TrimSpace(after)
		if parent == "" {
			return nil, false, fmt.Errorf("parse %q: empty parent term", line)
		}
	}
	if term == "" {
		return nil, false, fmt.Errorf("parse %q: empty term", line)
	}
	return NewTask(term, parent, b), true, nil
}

// taskJSON is the JSON-lines form of a perception. Missing budget fields
// take the DefaultInputBudget values.
type taskJSON struct {
	Term       string   `json:"term"`
	Parent     string   `json:"parent"`
	Priority   *float64 `json:"priority"`
	Durability *float64 `json:"durability"`
	Quality    *float64 `json:"quality"`
}

func parseTaskJSON(line string) (*Task, bool, error) {
	var rec taskJSON
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil, false, fmt.Errorf("parse %q: %w", line, err)
	}
	rec.Term, rec.Parent = strings.TrimSpace(rec.Term), strings.TrimSpace(rec.Parent)
	if rec.Term == "" {
		return nil, false, fmt.Errorf("parse %q: empty term", line)
	}

	b := DefaultInputBudget
	for _, f := range []struct {
		v   *float64
		dst *float64
	}{
		{rec.Priority, &b.Priority},
		{rec.Durability, &b.Durability},
		{rec.Quality, &b.Quality},
	} {
		if f.v == nil {
			continue
		}
		if *f.v < 0 || *f.v > 1 {
			return nil, false, fmt.Errorf("parse %q: budget value %v outside [0,1]", line, *f.v)
		}
		*f.dst = *f.v
	}
	return NewTask(rec.Term, rec.Parent, b), true, nil
}
