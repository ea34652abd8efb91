package budget

import (
	"fmt"
	"math"
	"strings"
)

// Curve maps a relaxation factor x >= 0 onto the fraction of the
// priority-above-quality gap that survives. Every curve is 1 at x=0, strictly
// decreasing, and 1/2 at x=1, so Forgetting.Cycles is always the number of
// cycles until priority has moved halfway to quality.
type Curve int

const (
	Exponential Curve = iota
	Linear
	Hyperbolic
)

func (c Curve) String() string {
	switch c {
	case Exponential:
		return "exponential"
	case Linear:
		return "linear"
	case Hyperbolic:
		return "hyperbolic"
	default:
		return fmt.Sprintf("Curve(%d)", int(c))
	}
}

// ParseCurve maps a config name onto a Curve.
func ParseCurve(s string) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exponential", "exp", "":
		return Exponential, nil
	case "linear":
		return Linear, nil
	case "hyperbolic":
		return Hyperbolic, nil
	default:
		return Exponential, fmt.Errorf("unknown decay curve %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Curve) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Curve) UnmarshalText(text []byte) error {
	v, err := ParseCurve(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Factor evaluates the curve.
func (c Curve) Factor(x float64) float64 {
	if x <= 0 {
		return 1
	}
	switch c {
	case Linear:
		return math.Max(0, 1-x/2)
	case Hyperbolic:
		return 1 / (1 + x)
	default:
		// 2^-x, the half-life form
		return math.Pow(2, -x)
	}
}

// Forgetting parameterizes decay for one kind of container.
type Forgetting struct {
	// Cycles until priority halves toward quality at zero durability.
	Cycles float64
	Curve  Curve
}

// Decay returns b after elapsed logical cycles without a touch.
//
// Durability stretches the effective duration to Cycles/(1-durability); a
// durability of 1 never decays. The result lies in [quality, priority]:
// priority never increases and never drops below the quality floor.
func Decay(b Budget, elapsed int64, f Forgetting) Budget {
	if elapsed <= 0 || f.Cycles <= 0 || b.Durability >= 1 || b.Priority <= b.Quality {
		return b
	}
	effective := f.Cycles / (1 - b.Durability)
	x := float64(elapsed) / effective

	p := b.Quality + (b.Priority-b.Quality)*f.Curve.Factor(x)
	b.Priority = math.Min(b.Priority, math.Max(b.Quality, p))
	return b
}
