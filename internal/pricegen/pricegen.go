// Package pricegen produces synthetic per-tick price paths for session
// instruments.
//
// Each path is a discrete-time random walk with a small positive drift:
//
//	price[t+1] = price[t] + Drift*price[t] + Volatility*price[t]*N(0,1)
//
// No floor is enforced. With these constants a path going negative within a
// few thousand ticks is vanishingly unlikely but not impossible.
package pricegen

import (
	"math/rand"
	"sync"
	"time"
)

const (
	// Drift is the per-tick expected relative return.
	Drift = 0.001

	// Volatility scales the per-tick normal shock.
	Volatility = 0.02

	// MinSeed and MaxSeed bound the random seed price: [MinSeed, MaxSeed).
	MinSeed = 100.0
	MaxSeed = 200.0
)

// Source is the random source a Generator draws from. *rand.Rand satisfies it.
type Source interface {
	Float64() float64
	NormFloat64() float64
}

// Generator draws seed prices and price paths from one random source.
// It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	src Source
}

// New creates a generator over src. A nil src uses a time-seeded source.
func New(src Source) *Generator {
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{src: src}
}

// NewSeeded creates a deterministic generator, mainly for tests and replays.
func NewSeeded(seed int64) *Generator {
	return New(rand.New(rand.NewSource(seed)))
}

// SeedPrice returns a uniform random price in [MinSeed, MaxSeed).
func (g *Generator) SeedPrice() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return MinSeed + g.src.Float64()*(MaxSeed-MinSeed)
}

// Generate returns a path of ticks+1 prices starting at seed.
// A negative tick count is treated as zero.
func (g *Generator) Generate(seed float64, ticks int) []float64 {
	if ticks < 0 {
		ticks = 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	prices := make([]float64, ticks+1)
	prices[0] = seed
	price := seed
	for i := 1; i <= ticks; i++ {
		drift := Drift * price
		shock := Volatility * price * g.src.NormFloat64()
		price += drift + shock
		prices[i] = price
	}
	return prices
}

// Path draws a seed price and generates a full path from it.
func (g *Generator) Path(ticks int) []float64 {
	return g.Generate(g.SeedPrice(), ticks)
}
