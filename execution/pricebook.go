package execution

import "sync"

// PriceBook is a concurrency-safe last-price cache. It backs the order
// controller's replace loop and the fill simulator's market-price fallback.
type PriceBook struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func NewPriceBook() *PriceBook {
	return &PriceBook{prices: make(map[string]float64)}
}

// Set records the latest price for a symbol.
func (b *PriceBook) Set(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prices[symbol] = price
}

// Get returns the latest price for a symbol. Satisfies orders.PriceFunc.
func (b *PriceBook) Get(symbol string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.prices[symbol]
	return p, ok
}
