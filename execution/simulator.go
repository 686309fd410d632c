package execution

import (
	"hash/fnv"
	"math/rand"

	"github.com/hampro/tradecore/orders"
)

// Fill probabilities by intent type. De-risking intents fill with near
// certainty; everything else is a coin flip.
const (
	probHardDerisk = 1.0
	probSoftDerisk = 0.9
	probDefault    = 0.5

	// fallbackPrice stands in when an order has no limit price and the price
	// book holds nothing for the symbol. Dry-run only.
	fallbackPrice = 100.0
)

// SimFill is a simulated execution.
type SimFill struct {
	Qty   int
	Price float64
}

// Simulator produces deterministic fills for dry-run and backtest mode. The
// random draw is seeded from the order ID, so replaying the same order
// reproduces the same outcome.
type Simulator struct {
	prices *PriceBook // optional market-price source, may be nil
}

func NewSimulator(prices *PriceBook) *Simulator {
	return &Simulator{prices: prices}
}

// Simulate draws a fill for the order. ok is false when the draw misses and
// the order stays working. A fill below the full quantity is a partial.
func (s *Simulator) Simulate(o orders.Order, intentType string) (SimFill, bool) {
	rng := rand.New(rand.NewSource(seedFrom(o.ID)))

	p := probDefault
	switch intentType {
	case "HARD_DERISK":
		p = probHardDerisk
	case "SOFT_DERISK":
		p = probSoftDerisk
	}
	if rng.Float64() >= p {
		return SimFill{}, false
	}

	qty := o.RemainingQty()
	if p < 1.0 && qty > 1 && rng.Float64() < 0.25 {
		qty /= 2
	}

	price := o.Price
	if price <= 0 {
		if s.prices != nil {
			if v, ok := s.prices.Get(o.Symbol); ok {
				price = v
			}
		}
		if price <= 0 {
			price = fallbackPrice
		}
	}
	return SimFill{Qty: qty, Price: price}, true
}

func seedFrom(orderID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(orderID))
	return int64(h.Sum64())
}
