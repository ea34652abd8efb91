package engine

// Forgetting is applied lazily by the bags (bag.LevelBag.touch):
//   - each resident remembers the cycle it was last touched
//   - a touch decays priority toward quality over the elapsed cycles,
//     halving the gap every ForgetDurations x Duration / (1 - durability)
//   - fully durable items never decay
//   - a resident stays in its bucket until it is merged or re-leveled
//
// Relevel is the explicit sweep that moves decayed concepts down.

// Relevel moves every in-memory concept to the bucket matching its decayed
// priority and returns how many were visited.
func (m *Memory) Relevel() int {
	var terms []string
	m.concepts.ForEach(func(c *Concept) { terms = append(terms, c.Term) })
	for _, term := range terms {
		m.concepts.Relevel(term)
	}
	return len(terms)
}
