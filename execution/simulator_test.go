package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hampro/tradecore/orders"
)

func simOrder(id string, price float64) orders.Order {
	return orders.Order{
		ID:     id,
		Symbol: "AAPL",
		Action: "BUY",
		LotQty: 100,
		Price:  price,
	}
}

func TestSimulateIsDeterministicPerOrderID(t *testing.T) {
	t.Parallel()

	sim := NewSimulator(nil)
	first, okFirst := sim.Simulate(simOrder("ord-1", 150.0), "REBALANCE")
	for i := 0; i < 10; i++ {
		fill, ok := sim.Simulate(simOrder("ord-1", 150.0), "REBALANCE")
		assert.Equal(t, okFirst, ok)
		assert.Equal(t, first, fill)
	}
}

func TestSimulateHardDeriskAlwaysFillsFull(t *testing.T) {
	t.Parallel()

	sim := NewSimulator(nil)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		fill, ok := sim.Simulate(simOrder(id, 150.0), "HARD_DERISK")
		require.True(t, ok)
		assert.Equal(t, 100, fill.Qty)
	}
}

func TestSimulatePriceFallback(t *testing.T) {
	t.Parallel()

	// No limit price, no price book: the placeholder price is used.
	sim := NewSimulator(nil)
	fill, ok := sim.Simulate(simOrder("ord-1", 0), "HARD_DERISK")
	require.True(t, ok)
	assert.InDelta(t, fallbackPrice, fill.Price, 1e-9)

	// A price book entry beats the placeholder.
	book := NewPriceBook()
	book.Set("AAPL", 151.25)
	sim = NewSimulator(book)
	fill, ok = sim.Simulate(simOrder("ord-1", 0), "HARD_DERISK")
	require.True(t, ok)
	assert.InDelta(t, 151.25, fill.Price, 1e-9)

	// A limit price beats both.
	fill, ok = sim.Simulate(simOrder("ord-1", 150.0), "HARD_DERISK")
	require.True(t, ok)
	assert.InDelta(t, 150.0, fill.Price, 1e-9)
}

func TestADVGuardCapsAndDefers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		guard     ADVGuard
		req       SizeRequest
		wantValid bool
		wantQty   int
	}{
		{
			name:      "within cap passes untouched",
			guard:     ADVGuard{MaxADVFraction: 0.05},
			req:       SizeRequest{Symbol: "AAPL", DesiredQty: 100, AvgADV: 10000},
			wantValid: true,
			wantQty:   100,
		},
		{
			name:      "above cap is reduced",
			guard:     ADVGuard{MaxADVFraction: 0.05},
			req:       SizeRequest{Symbol: "AAPL", DesiredQty: 900, AvgADV: 10000},
			wantValid: true,
			wantQty:   500,
		},
		{
			name:      "unknown adv defers",
			guard:     ADVGuard{MaxADVFraction: 0.05},
			req:       SizeRequest{Symbol: "AAPL", DesiredQty: 100},
			wantValid: false,
		},
		{
			name:      "hard derisk bypasses sizing",
			guard:     ADVGuard{MaxADVFraction: 0.05},
			req:       SizeRequest{Symbol: "AAPL", DesiredQty: 900, AvgADV: 100, IntentType: "HARD_DERISK"},
			wantValid: true,
			wantQty:   900,
		},
		{
			name:      "cap halves near the close",
			guard:     ADVGuard{MaxADVFraction: 0.05, CloseWindowMinutes: 30},
			req:       SizeRequest{Symbol: "AAPL", DesiredQty: 400, AvgADV: 10000, MinutesToClose: 15},
			wantValid: true,
			wantQty:   250,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dec := tt.guard.Validate(tt.req)
			assert.Equal(t, tt.wantValid, dec.Valid)
			if tt.wantValid {
				assert.Equal(t, tt.wantQty, dec.Qty)
			} else {
				assert.NotEmpty(t, dec.Reason)
			}
		})
	}
}

func TestADVGuardResolverFallback(t *testing.T) {
	t.Parallel()

	g := ADVGuard{
		MaxADVFraction: 0.05,
		ADV: func(symbol string) (float64, bool) {
			return 2000, symbol == "AAPL"
		},
	}

	dec := g.Validate(SizeRequest{Symbol: "AAPL", DesiredQty: 500})
	assert.True(t, dec.Valid)
	assert.Equal(t, 100, dec.Qty)

	dec = g.Validate(SizeRequest{Symbol: "TSLA", DesiredQty: 500})
	assert.False(t, dec.Valid)
}
