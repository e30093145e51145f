package garch_test

import (
	"testing"

	"github.com/tradelab/sim-engine/internal/garch"
)

func TestNext_PriceStrictlyPositive(t *testing.T) {
	p := garch.NewProcess(100, garch.NewRand(1))

	for i := 0; i < 50000; i++ {
		price, _ := p.Next()
		if price <= 0 {
			t.Fatalf("price went non-positive at tick %d: %v", i, price)
		}
	}
}

func TestNext_VolumeAlwaysPositive(t *testing.T) {
	p := garch.NewProcess(250, garch.NewRand(7))

	for i := 0; i < 10000; i++ {
		_, volume := p.Next()
		if volume <= 0 {
			t.Fatalf("volume went non-positive at tick %d: %v", i, volume)
		}
	}
}

func TestNext_ReproducibleGivenSeed(t *testing.T) {
	a := garch.NewProcess(50000, garch.NewRand(42))
	b := garch.NewProcess(50000, garch.NewRand(42))

	for i := 0; i < 1000; i++ {
		pa, va := a.Next()
		pb, vb := b.Next()
		if pa != pb || va != vb {
			t.Fatalf("sequences diverged at tick %d: (%v,%v) vs (%v,%v)", i, pa, va, pb, vb)
		}
	}
}

func TestNext_SeedsProduceDistinctPaths(t *testing.T) {
	a := garch.NewProcess(50000, garch.NewRand(1))
	b := garch.NewProcess(50000, garch.NewRand(2))

	same := true
	for i := 0; i < 100; i++ {
		pa, _ := a.Next()
		pb, _ := b.Next()
		if pa != pb {
			same = false
			break
		}
	}
	if same {
		t.Error("independent seeds produced identical price paths")
	}
}

func TestNext_StateAdvancesEveryCall(t *testing.T) {
	p := garch.NewProcess(100, garch.NewRand(3))

	prev := p.LastPrice()
	moved := 0
	for i := 0; i < 100; i++ {
		price, _ := p.Next()
		if price != prev {
			moved++
		}
		prev = price
	}
	// A stuck generator would defeat the whole simulation.
	if moved < 90 {
		t.Errorf("price moved on only %d/100 ticks", moved)
	}
}

func TestNewProcess_NonPositiveStartClamped(t *testing.T) {
	p := garch.NewProcess(-5, garch.NewRand(1))
	price, _ := p.Next()
	if price <= 0 {
		t.Fatalf("price should stay positive from a clamped start, got %v", price)
	}
}

func TestNextTick_RoundsToScale(t *testing.T) {
	p := garch.NewProcess(50000, garch.NewRand(9))

	for i := 0; i < 100; i++ {
		tick := p.NextTick(2)
		if !tick.Price.IsPositive() {
			t.Fatalf("tick price should be positive, got %s", tick.Price)
		}
		if tick.Price.Exponent() < -2 {
			t.Fatalf("tick price %s has more than 2 decimal places", tick.Price)
		}
		if !tick.Volume.IsPositive() {
			t.Fatalf("tick volume should be positive, got %s", tick.Volume)
		}
	}
}
