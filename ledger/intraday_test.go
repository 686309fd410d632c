package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = "2026-03-02"

func TestOpeningFillsRealizeNothing(t *testing.T) {
	t.Parallel()

	tr := NewTracker()

	pnl, pos := tr.UpdatePosition("HAMPRO", "AAPL", 100, 150.0, "BUY", day)
	assert.Zero(t, pnl)
	assert.Equal(t, 100, pos.NetQty)
	assert.InDelta(t, 150.0, pos.AvgCost, 1e-9)

	// Adding blends the average cost, still no realized P&L.
	pnl, pos = tr.UpdatePosition("HAMPRO", "AAPL", 100, 160.0, "BUY", day)
	assert.Zero(t, pnl)
	assert.Equal(t, 200, pos.NetQty)
	assert.InDelta(t, 155.0, pos.AvgCost, 1e-9)
}

func TestClosingIntradayLongRealizes(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.UpdatePosition("HAMPRO", "AAPL", 100, 150.0, "BUY", day)

	pnl, pos := tr.UpdatePosition("HAMPRO", "AAPL", 60, 153.0, "SELL", day)
	assert.InDelta(t, 180.0, pnl, 1e-9) // 60 × (153−150)
	assert.Equal(t, 40, pos.NetQty)
	assert.InDelta(t, 150.0, pos.AvgCost, 1e-9, "closing leaves the average cost alone")

	pnl, pos = tr.UpdatePosition("HAMPRO", "AAPL", 40, 148.0, "SELL", day)
	assert.InDelta(t, -80.0, pnl, 1e-9) // 40 × (148−150)
	assert.Equal(t, 0, pos.NetQty)
	assert.InDelta(t, 100.0, pos.RealizedPnL, 1e-9)
}

func TestClosingIntradayShortRealizes(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.UpdatePosition("HAMPRO", "TSLA", 50, 200.0, "SELL", day)

	pnl, pos := tr.UpdatePosition("HAMPRO", "TSLA", 50, 190.0, "BUY", day)
	assert.InDelta(t, 500.0, pnl, 1e-9) // 50 × (200−190)
	assert.Equal(t, 0, pos.NetQty)
}

func TestCrossingFlatReopensRemainder(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.UpdatePosition("HAMPRO", "AAPL", 100, 150.0, "BUY", day)

	// Sell 150: close 100 at +2 each, open a 50-lot short at 152.
	pnl, pos := tr.UpdatePosition("HAMPRO", "AAPL", 150, 152.0, "SELL", day)
	assert.InDelta(t, 200.0, pnl, 1e-9)
	assert.Equal(t, -50, pos.NetQty)
	assert.InDelta(t, 152.0, pos.AvgCost, 1e-9)
}

func TestBaselineUnwindRealizesNothing(t *testing.T) {
	t.Parallel()

	// The account carried 500 AAPL overnight, but the tracker holds no
	// intraday lots: selling against the baseline must realize nothing.
	tr := NewTracker()
	pnl, pos := tr.UpdatePosition("HAMPRO", "AAPL", 200, 150.0, "SELL", day)
	assert.Zero(t, pnl)
	assert.Equal(t, -200, pos.NetQty, "the sale opens an intraday short lot")
}

func TestPositionsIsolatedByAccountSymbolDate(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.UpdatePosition("HAMPRO", "AAPL", 100, 150.0, "BUY", day)
	tr.UpdatePosition("IBKR_GUN", "AAPL", 10, 150.0, "BUY", day)
	tr.UpdatePosition("HAMPRO", "MSFT", 20, 400.0, "BUY", day)
	tr.UpdatePosition("HAMPRO", "AAPL", 5, 150.0, "BUY", "2026-03-03")

	pos, ok := tr.GetPosition("HAMPRO", "AAPL", day)
	require.True(t, ok)
	assert.Equal(t, 100, pos.NetQty)

	pos, ok = tr.GetPosition("IBKR_GUN", "AAPL", day)
	require.True(t, ok)
	assert.Equal(t, 10, pos.NetQty)

	tr.PruneBefore("2026-03-03")
	_, ok = tr.GetPosition("HAMPRO", "AAPL", day)
	assert.False(t, ok)
	_, ok = tr.GetPosition("HAMPRO", "AAPL", "2026-03-03")
	assert.True(t, ok)
}
