package pricegen

import (
	"math"
	"testing"
)

// fixedSource returns scripted values so paths can be checked exactly.
type fixedSource struct {
	uniform float64
	normals []float64
	i       int
}

func (f *fixedSource) Float64() float64 { return f.uniform }

func (f *fixedSource) NormFloat64() float64 {
	v := f.normals[f.i%len(f.normals)]
	f.i++
	return v
}

func TestGenerate_Length(t *testing.T) {
	g := NewSeeded(1)
	for _, ticks := range []int{0, 1, 10, 600} {
		got := g.Generate(150, ticks)
		if len(got) != ticks+1 {
			t.Errorf("ticks=%d: expected %d prices, got %d", ticks, ticks+1, len(got))
		}
		if got[0] != 150 {
			t.Errorf("ticks=%d: expected seed 150 at index 0, got %v", ticks, got[0])
		}
	}
}

func TestGenerate_NegativeTicks(t *testing.T) {
	got := NewSeeded(1).Generate(120, -5)
	if len(got) != 1 || got[0] != 120 {
		t.Errorf("expected [120], got %v", got)
	}
}

func TestGenerate_ZeroShockIsPureDrift(t *testing.T) {
	g := New(&fixedSource{normals: []float64{0}})
	got := g.Generate(100, 3)
	want := 100.0
	for i := 1; i <= 3; i++ {
		want *= 1 + Drift
		if math.Abs(got[i]-want) > 1e-9 {
			t.Errorf("tick %d: expected %v, got %v", i, want, got[i])
		}
	}
}

func TestGenerate_ShockScalesWithPrice(t *testing.T) {
	g := New(&fixedSource{normals: []float64{1, -1}})
	got := g.Generate(100, 2)
	p1 := 100 + Drift*100 + Volatility*100
	p2 := p1 + Drift*p1 - Volatility*p1
	if math.Abs(got[1]-p1) > 1e-9 || math.Abs(got[2]-p2) > 1e-9 {
		t.Errorf("expected [100 %v %v], got %v", p1, p2, got)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := NewSeeded(42).Generate(150, 50)
	b := NewSeeded(42).Generate(150, 50)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("index %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestSeedPrice_Range(t *testing.T) {
	g := NewSeeded(7)
	for i := 0; i < 1000; i++ {
		p := g.SeedPrice()
		if p < MinSeed || p >= MaxSeed {
			t.Fatalf("seed price %v outside [%v, %v)", p, MinSeed, MaxSeed)
		}
	}
	if p := New(&fixedSource{uniform: 0}).SeedPrice(); p != MinSeed {
		t.Errorf("expected %v for uniform 0, got %v", MinSeed, p)
	}
}

func TestPath_StartsAtSeedRange(t *testing.T) {
	path := NewSeeded(3).Path(10)
	if len(path) != 11 {
		t.Fatalf("expected 11 prices, got %d", len(path))
	}
	if path[0] < MinSeed || path[0] >= MaxSeed {
		t.Errorf("seed %v outside range", path[0])
	}
}
