// Package garch implements the synthetic price process driving the
// simulation: a GARCH(1,1)-style volatility recursion with drift and rare
// jumps.
//
// Each call to Next advances the process by one tick:
//
//	vol_t   = sqrt(omega + alpha*r²_{t-1} + beta*vol²_{t-1})
//	r_t     = drift + shock*vol_t + jump
//	price_t = max(price_{t-1} * (1 + r_t), epsilon)
//
// The shock is the sum of three independent uniform(-0.5, 0.5) draws
// (Irwin–Hall), an approximate normal that avoids the heavy tails of a
// single uniform draw. alpha + beta < 1 keeps the recursion stationary.
//
// Internal math is float64 for speed; results cross into the rest of the
// engine as shopspring/decimal at the tick boundary (see Tick).
package garch

import (
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
)

// Process constants. Tuned for roughly 5 ticks/second of simulated time.
const (
	omega = 0.0000002  // base variance
	alpha = 0.12       // shock reactivity
	beta  = 0.85       // volatility persistence
	drift = 0.00000015 // per-tick upward drift

	jumpProbability = 0.0005 // 0.05% of ticks carry a jump
	jumpMagnitude   = 0.0075 // jump scale: up to ±0.75%

	priceEpsilon = 1e-8 // floor keeping prices strictly positive

	baseVolume       = 10.0 // synthetic volume scale per tick
	volumeMoveWeight = 25.0 // extra volume per unit of |return|/vol
)

// RNG is the randomness source for the process. Isolating it behind an
// interface keeps the process reproducible given a seed.
type RNG interface {
	// Float64 returns a uniform draw in [0, 1).
	Float64() float64
}

// NewRand returns a seeded math/rand source satisfying RNG.
func NewRand(seed int64) RNG {
	return rand.New(rand.NewSource(seed))
}

// Tick is one synthetic (price, volume) sample.
type Tick struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// Process is a stateful stochastic price generator. It is a pure generator:
// Next never fails and the price is always strictly positive. Volatility
// state persists across calls; there are no resets except by constructing a
// fresh Process (for example to decouple historical backfill from the live
// continuation).
//
// Not safe for concurrent use. A process has a single logical owner.
type Process struct {
	rng RNG

	lastPrice      float64
	volatility     float64
	lastSquaredRet float64
}

// NewProcess creates a process starting from the given price, which must be
// positive. The initial volatility is the unconditional level implied by
// the constants, sqrt(omega / (1 - alpha - beta)).
func NewProcess(startPrice float64, rng RNG) *Process {
	if startPrice <= 0 {
		startPrice = priceEpsilon
	}
	return &Process{
		rng:        rng,
		lastPrice:  startPrice,
		volatility: math.Sqrt(omega / (1 - alpha - beta)),
	}
}

// LastPrice returns the most recent price as a float64.
func (p *Process) LastPrice() float64 {
	return p.lastPrice
}

// Next advances the process by one tick and returns the new price and the
// synthetic volume of the move.
func (p *Process) Next() (price, volume float64) {
	p.volatility = math.Sqrt(omega + alpha*p.lastSquaredRet + beta*p.volatility*p.volatility)

	// Irwin–Hall approximate normal: sum of three uniform(-0.5, 0.5).
	shock := (p.rng.Float64() - 0.5) + (p.rng.Float64() - 0.5) + (p.rng.Float64() - 0.5)

	var jump float64
	if p.rng.Float64() < jumpProbability {
		jump = (p.rng.Float64()*2 - 1) * jumpMagnitude
	}

	ret := drift + shock*p.volatility + jump

	price = p.lastPrice * (1 + ret)
	if price < priceEpsilon {
		price = priceEpsilon
	}

	p.lastSquaredRet = ret * ret
	p.lastPrice = price

	// Larger moves relative to current volatility draw more volume, with a
	// random multiplier centered at 1.
	relMove := math.Abs(ret) / math.Max(p.volatility, priceEpsilon)
	multiplier := 0.5 + p.rng.Float64()
	volume = (baseVolume + volumeMoveWeight*relMove) * multiplier

	return price, volume
}

// NextTick advances the process and returns the sample as decimals, rounded
// to the given tick scale. This is the boundary where float64 math becomes
// money.
func (p *Process) NextTick(priceScale int32) Tick {
	price, volume := p.Next()
	return Tick{
		Price:  decimal.NewFromFloat(price).Round(priceScale),
		Volume: decimal.NewFromFloat(volume).Round(4),
	}
}
