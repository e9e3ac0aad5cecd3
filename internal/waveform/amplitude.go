// Package waveform implements the complex amplitude vector carried by every
// entity of the resonance network: normalization, global phase rotation,
// linear interference and Born-rule sampling.
package waveform

import (
	"math"
	"math/cmplx"
	"math/rand/v2"

	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Amplitude is an ordered sequence of complex amplitudes. Outside of an
// in-progress arithmetic step its L2 norm is 1.
type Amplitude []complex128

// Component is the polar and cartesian decomposition of one amplitude slot.
type Component struct {
	Real      float64 `json:"real"`
	Imag      float64 `json:"imag"`
	Magnitude float64 `json:"magnitude"`
	Phase     float64 `json:"phase"`
}

// Random returns a unit-norm amplitude of length n whose real and imaginary
// parts are drawn independently from a standard normal distribution.
func Random(n int, rng *rand.Rand) Amplitude {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	a := make(Amplitude, n)
	for i := range a {
		a[i] = complex(normal.Rand(), normal.Rand())
	}
	a.Normalize()
	return a
}

// Basis returns the standard basis vector of length n with a 1 at index k.
// It returns nil when k is out of range.
func Basis(n, k int) Amplitude {
	if k < 0 || k >= n {
		return nil
	}
	a := make(Amplitude, n)
	a[k] = 1
	return a
}

// FromComponents rebuilds an amplitude from its real and imaginary parts.
// Magnitude and phase are ignored.
func FromComponents(cs []Component) Amplitude {
	a := make(Amplitude, len(cs))
	for i, c := range cs {
		a[i] = complex(c.Real, c.Imag)
	}
	return a
}

// RandomAngle draws a rotation angle uniformly from [0, pi).
func RandomAngle(rng *rand.Rand) float64 {
	return distuv.Uniform{Min: 0, Max: math.Pi, Src: rng}.Rand()
}

// Len returns the number of slots.
func (a Amplitude) Len() int { return len(a) }

// Clone returns an independent copy.
func (a Amplitude) Clone() Amplitude {
	if a == nil {
		return nil
	}
	c := make(Amplitude, len(a))
	copy(c, a)
	return c
}

// Norm returns the Euclidean norm.
func (a Amplitude) Norm() float64 {
	if len(a) == 0 {
		return 0
	}
	return cmplxs.Norm(a, 2)
}

// Normalize scales the vector to unit norm in place. The vector is first
// divided by its largest component so finite inputs near the float64 range
// do not overflow. A zero or non-finite vector is left unchanged.
func (a Amplitude) Normalize() {
	var scale float64
	for _, v := range a {
		scale = max(scale, math.Abs(real(v)), math.Abs(imag(v)))
	}
	if !(scale > 0) || math.IsInf(scale, 0) {
		return
	}
	for i, v := range a {
		a[i] = complex(real(v)/scale, imag(v)/scale)
	}
	cmplxs.ScaleReal(1/a.Norm(), a)
}

// Rotate multiplies every slot by e^{i*angle}. Magnitudes are unchanged.
func (a Amplitude) Rotate(angle float64) {
	if len(a) == 0 {
		return
	}
	cmplxs.Scale(cmplx.Exp(complex(0, angle)), a)
}

// AddScaled accumulates gain*other into a. When the lengths differ only the
// overlapping prefix is accumulated.
func (a Amplitude) AddScaled(gain float64, other Amplitude) {
	if len(a) == len(other) {
		cmplxs.AddScaled(a, complex(gain, 0), other)
		return
	}
	n := min(len(a), len(other))
	for i := 0; i < n; i++ {
		a[i] += complex(gain, 0) * other[i]
	}
}

// Probabilities returns the squared magnitude of every slot. The result is
// not normalized.
func (a Amplitude) Probabilities() []float64 {
	p := make([]float64, len(a))
	for i, v := range a {
		m := cmplx.Abs(v)
		p[i] = m * m
	}
	return p
}

// Sample draws an index with probability proportional to |a_k|^2 (Born rule).
// ok is false when the distribution is degenerate: empty, summing to a
// non-positive value, or containing non-finite weights.
func (a Amplitude) Sample(rng *rand.Rand) (index int, ok bool) {
	p := a.Probabilities()
	if len(p) == 0 {
		return 0, false
	}
	total := floats.Sum(p)
	if !(total > 0) || math.IsInf(total, 0) {
		return 0, false
	}
	floats.Scale(1/total, p)
	return int(distuv.NewCategorical(p, rng).Rand()), true
}

// IsBasis reports whether a is exactly the basis vector at index k.
func (a Amplitude) IsBasis(k int) bool {
	if k < 0 || k >= len(a) {
		return false
	}
	for i, v := range a {
		if i == k {
			if v != 1 {
				return false
			}
			continue
		}
		if v != 0 {
			return false
		}
	}
	return true
}

// Components decomposes every slot into real, imaginary, magnitude and phase.
func (a Amplitude) Components() []Component {
	cs := make([]Component, len(a))
	for i, v := range a {
		cs[i] = Component{
			Real:      real(v),
			Imag:      imag(v),
			Magnitude: cmplx.Abs(v),
			Phase:     cmplx.Phase(v),
		}
	}
	return cs
}

// MeanMagnitude returns the mean slot magnitude, or 0 for an empty vector.
func (a Amplitude) MeanMagnitude() float64 {
	if len(a) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range a {
		sum += cmplx.Abs(v)
	}
	return sum / float64(len(a))
}
