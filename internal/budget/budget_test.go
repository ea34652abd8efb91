package budget

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClamps(t *testing.T) {
	b := New(1.5, -0.2, math.NaN())
	assert.Equal(t, Budget{Priority: 1, Durability: 0, Quality: 0}, b)
}

func TestAboveThreshold(t *testing.T) {
	b := New(0.9, 0.6, 0.3)
	assert.InDelta(t, 0.6, b.Summary(), 1e-9)
	assert.True(t, b.AboveThreshold(0))
	assert.True(t, b.AboveThreshold(0.59))
	assert.False(t, b.AboveThreshold(0.61))
	assert.False(t, b.AboveThreshold(1))
	assert.True(t, New(1, 1, 1).AboveThreshold(1))
}

func TestMergePlus(t *testing.T) {
	target := New(0.3, 0.5, 0.2)
	Merge(&target, New(0.4, 0.5, 0.6), Plus)

	assert.InDelta(t, 0.7, target.Priority, 1e-9)
	assert.InDelta(t, 0.5, target.Durability, 1e-9)
	assert.InDelta(t, 0.4, target.Quality, 1e-9)

	// priority saturates at 1
	Merge(&target, New(0.9, 0.1, 0.1), Plus)
	assert.Equal(t, 1.0, target.Priority)
}

func TestMergePlusFavorsDurable(t *testing.T) {
	target := New(0.1, 0.9, 0.9)
	Merge(&target, New(0.1, 0.1, 0.1), Plus)

	assert.Greater(t, target.Durability, 0.5, "durable side should dominate")
	assert.Greater(t, target.Quality, 0.5)
	assert.LessOrEqual(t, target.Durability, 0.9)
}

func TestMergePlusZeroDurability(t *testing.T) {
	target := New(0.1, 0, 0.2)
	Merge(&target, New(0.1, 0, 0.4), Plus)
	assert.InDelta(t, 0.3, target.Quality, 1e-9)
	assert.Equal(t, 0.0, target.Durability)
}

func TestMergeMaxAndAverage(t *testing.T) {
	m := New(0.3, 0.8, 0.1)
	Merge(&m, New(0.4, 0.2, 0.5), Max)
	assert.Equal(t, New(0.4, 0.8, 0.5), m)

	a := New(0.2, 0.4, 0.6)
	Merge(&a, New(0.4, 0.6, 0.8), Average)
	assert.InDelta(t, 0.3, a.Priority, 1e-9)
	assert.InDelta(t, 0.5, a.Durability, 1e-9)
	assert.InDelta(t, 0.7, a.Quality, 1e-9)
}

func TestParseMergePolicy(t *testing.T) {
	for in, want := range map[string]MergePolicy{"plus": Plus, "MAX": Max, "average": Average, "": Plus} {
		got, err := ParseMergePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMergePolicy("sum")
	assert.Error(t, err)
}

func TestCurvesHalveAtOne(t *testing.T) {
	for _, c := range []Curve{Exponential, Linear, Hyperbolic} {
		assert.Equal(t, 1.0, c.Factor(0), c.String())
		assert.InDelta(t, 0.5, c.Factor(1), 1e-12, c.String())
	}
}

func TestDecayMonotonic(t *testing.T) {
	for _, c := range []Curve{Exponential, Linear, Hyperbolic} {
		f := Forgetting{Cycles: 10, Curve: c}
		for _, d := range []float64{0, 0.3, 0.9, 0.99} {
			b := New(0.9, d, 0.2)
			prev := b.Priority
			for elapsed := int64(0); elapsed <= 500; elapsed += 7 {
				got := Decay(b, elapsed, f)
				assert.LessOrEqual(t, got.Priority, prev, "curve=%s d=%v t=%d", c, d, elapsed)
				assert.GreaterOrEqual(t, got.Priority, b.Quality, "curve=%s d=%v t=%d", c, d, elapsed)
				assert.Equal(t, b.Durability, got.Durability)
				assert.Equal(t, b.Quality, got.Quality)
				prev = got.Priority
			}
		}
	}
}

func TestDecayHalvesTowardQuality(t *testing.T) {
	b := New(0.9, 0, 0.1)
	got := Decay(b, 10, Forgetting{Cycles: 10})
	assert.InDelta(t, 0.5, got.Priority, 1e-9)
}

func TestDecayDurabilitySlows(t *testing.T) {
	f := Forgetting{Cycles: 10}
	fast := Decay(New(0.9, 0.1, 0), 20, f)
	slow := Decay(New(0.9, 0.8, 0), 20, f)
	assert.Greater(t, slow.Priority, fast.Priority)
}

func TestDecayNoOp(t *testing.T) {
	f := Forgetting{Cycles: 10}

	// below the floor: no resurrection toward quality
	low := New(0.1, 0.5, 0.4)
	assert.Equal(t, low, Decay(low, 100, f))

	// fully durable
	solid := New(0.8, 1, 0)
	assert.Equal(t, solid, Decay(solid, 1000, f))

	// forgetting disabled
	b := New(0.8, 0.2, 0)
	assert.Equal(t, b, Decay(b, 1000, Forgetting{}))
	assert.Equal(t, b, Decay(b, -5, f))
}
