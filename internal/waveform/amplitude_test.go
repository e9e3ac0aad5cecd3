package waveform

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"
)

const tolerance = 1e-9

func testRNG() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestRandom_UnitNorm(t *testing.T) {
	rng := testRNG()
	for _, n := range []int{1, 4, 128} {
		a := Random(n, rng)
		if a.Len() != n {
			t.Fatalf("Random(%d) length = %d", n, a.Len())
		}
		if got := a.Norm(); math.Abs(got-1) > tolerance {
			t.Errorf("Random(%d) norm = %f, want 1", n, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Amplitude
		want Amplitude
	}{
		{"already unit", Amplitude{1, 0}, Amplitude{1, 0}},
		{"scales down", Amplitude{3, 4i}, Amplitude{0.6, 0.8i}},
		{"zero vector untouched", Amplitude{0, 0, 0}, Amplitude{0, 0, 0}},
		{"empty", Amplitude{}, Amplitude{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.in.Clone()
			a.Normalize()
			for i := range tt.want {
				if cmplx.Abs(a[i]-tt.want[i]) > tolerance {
					t.Errorf("slot %d = %v, want %v", i, a[i], tt.want[i])
				}
			}
		})
	}
}

func TestNormalize_NonFiniteUntouched(t *testing.T) {
	a := Amplitude{complex(math.Inf(1), 0), 1}
	a.Normalize()
	if !math.IsInf(real(a[0]), 1) || a[1] != 1 {
		t.Errorf("non-finite vector was modified: %v", a)
	}
}

func TestNormalize_LargeFinite(t *testing.T) {
	tests := []struct {
		name string
		in   Amplitude
		want Amplitude
	}{
		{"near max float", Amplitude{complex(3e200, 0), complex(0, 4e200)}, Amplitude{0.6, 0.8i}},
		{"mixed scales", Amplitude{complex(1e300, 0), 1}, Amplitude{1, 0}},
		{"tiny", Amplitude{complex(3e-300, 0), complex(0, 4e-300)}, Amplitude{0.6, 0.8i}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.in.Clone()
			a.Normalize()
			for i := range tt.want {
				if cmplx.Abs(a[i]-tt.want[i]) > tolerance {
					t.Errorf("slot %d = %v, want %v", i, a[i], tt.want[i])
				}
			}
			if n := a.Norm(); math.Abs(n-1) > tolerance {
				t.Errorf("norm = %v, want 1", n)
			}
		})
	}
}

func TestRotate_PreservesMagnitudes(t *testing.T) {
	a := Random(16, testRNG())
	before := a.Probabilities()

	a.Rotate(1.234)

	after := a.Probabilities()
	for i := range before {
		if math.Abs(before[i]-after[i]) > tolerance {
			t.Errorf("slot %d probability changed: %f -> %f", i, before[i], after[i])
		}
	}
}

func TestRotate_ShiftsPhase(t *testing.T) {
	a := Amplitude{1, 0}
	a.Rotate(math.Pi / 2)
	if cmplx.Abs(a[0]-1i) > tolerance {
		t.Errorf("rotating 1 by pi/2 = %v, want i", a[0])
	}
}

func TestAddScaled(t *testing.T) {
	a := Amplitude{1, 0}
	a.AddScaled(0.5, Amplitude{0, 2})
	if a[0] != 1 || a[1] != 1 {
		t.Errorf("AddScaled = %v, want [1 1]", a)
	}
}

func TestAddScaled_LengthMismatch(t *testing.T) {
	a := Amplitude{1, 1, 1}
	a.AddScaled(1, Amplitude{1})
	if a[0] != 2 || a[1] != 1 || a[2] != 1 {
		t.Errorf("AddScaled prefix = %v, want [2 1 1]", a)
	}
}

func TestSample_Basis(t *testing.T) {
	rng := testRNG()
	a := Basis(4, 2)
	for i := 0; i < 50; i++ {
		idx, ok := a.Sample(rng)
		if !ok {
			t.Fatal("Sample on basis vector reported degenerate")
		}
		if idx != 2 {
			t.Fatalf("Sample = %d, want 2", idx)
		}
	}
}

func TestSample_Degenerate(t *testing.T) {
	rng := testRNG()
	tests := []struct {
		name string
		a    Amplitude
	}{
		{"empty", Amplitude{}},
		{"zero", Amplitude{0, 0}},
		{"nan", Amplitude{complex(math.NaN(), 0), 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := tt.a.Sample(rng); ok {
				t.Errorf("Sample(%v) ok = true, want false", tt.a)
			}
		})
	}
}

func TestSample_FollowsBornRule(t *testing.T) {
	rng := testRNG()
	// |a0|^2 = 0.25, |a1|^2 = 0.75
	a := Amplitude{0.5, complex(0, math.Sqrt(0.75))}
	counts := [2]int{}
	const draws = 20000
	for i := 0; i < draws; i++ {
		idx, ok := a.Sample(rng)
		if !ok {
			t.Fatal("unexpected degenerate sample")
		}
		counts[idx]++
	}
	frac := float64(counts[1]) / draws
	if math.Abs(frac-0.75) > 0.02 {
		t.Errorf("index 1 frequency = %f, want ~0.75", frac)
	}
}

func TestBasis(t *testing.T) {
	a := Basis(3, 1)
	if !a.IsBasis(1) {
		t.Errorf("Basis(3,1) = %v", a)
	}
	if a.IsBasis(0) {
		t.Error("Basis(3,1) reported as basis 0")
	}
	if Basis(3, 3) != nil {
		t.Error("Basis out of range should be nil")
	}
}

func TestComponents(t *testing.T) {
	a := Amplitude{complex(0, 1)}
	cs := a.Components()
	if len(cs) != 1 {
		t.Fatalf("len = %d", len(cs))
	}
	c := cs[0]
	if c.Real != 0 || c.Imag != 1 || math.Abs(c.Magnitude-1) > tolerance || math.Abs(c.Phase-math.Pi/2) > tolerance {
		t.Errorf("component = %+v", c)
	}

	back := FromComponents(cs)
	if back[0] != a[0] {
		t.Errorf("FromComponents = %v, want %v", back[0], a[0])
	}
}

func TestRandomAngle_Range(t *testing.T) {
	rng := testRNG()
	for i := 0; i < 1000; i++ {
		x := RandomAngle(rng)
		if x < 0 || x >= math.Pi {
			t.Fatalf("RandomAngle = %f outside [0, pi)", x)
		}
	}
}

func TestMeanMagnitude(t *testing.T) {
	if got := Basis(4, 0).MeanMagnitude(); math.Abs(got-0.25) > tolerance {
		t.Errorf("MeanMagnitude = %f, want 0.25", got)
	}
	if got := (Amplitude{}).MeanMagnitude(); got != 0 {
		t.Errorf("empty MeanMagnitude = %f", got)
	}
}
