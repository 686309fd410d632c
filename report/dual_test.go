package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hampro/tradecore/event"
	"github.com/hampro/tradecore/ledger"
	"github.com/hampro/tradecore/store"
)

const day = "2026-03-02"

func seededLoader(t *testing.T) *StoreLoader {
	t.Helper()

	loader := NewStoreLoader(store.NewMemoryStore())
	require.NoError(t, loader.Save(Snapshot{
		AccountID: "HAMPRO",
		Date:      day,
		Entries: []BaselineEntry{
			{Symbol: "AAPL", BefdayQty: 500, BefdayCost: 148.0, Notional: 74000.0},
			{Symbol: "TSLA", BefdayQty: -100, BefdayCost: 210.0, Notional: 21000.0},
		},
	}))
	require.NoError(t, loader.Save(Snapshot{
		AccountID: "IBKR_GUN",
		Date:      day,
		Entries: []BaselineEntry{
			{Symbol: "AAPL", BefdayQty: 100, BefdayCost: 149.0, Notional: 14900.0},
		},
	}))
	return loader
}

func seededDaily() *ledger.Daily {
	d := ledger.NewDaily(ledger.NewTracker(), nil)
	d.SetNow(func() time.Time { return time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC) })

	d.RecordFill(event.OrderEvent{
		OrderID: "ord-1", Symbol: "AAPL", Action: event.StatusFilled,
		Classification: "LONG_DECREASE", FilledQuantity: 200, AvgFillPrice: 151.0,
		Status: event.StatusFilled, OrderAction: "SELL", AccountID: "HAMPRO",
	})
	d.RecordFill(event.OrderEvent{
		OrderID: "ord-2", Symbol: "MSFT", Action: event.StatusFilled,
		Classification: "LONG_INCREASE", FilledQuantity: 50, AvgFillPrice: 400.0,
		Status: event.StatusFilled, OrderAction: "BUY", AccountID: "HAMPRO",
	})
	return d
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	loader := seededLoader(t)
	snap, err := loader.Load("HAMPRO", day)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "AAPL", snap.Entries[0].Symbol)
	assert.Equal(t, 500, snap.Entries[0].BefdayQty)
	assert.Equal(t, -100, snap.Entries[1].BefdayQty)
}

func TestLoadMissingSnapshotIsEmpty(t *testing.T) {
	t.Parallel()

	loader := NewStoreLoader(store.NewMemoryStore())
	snap, err := loader.Load("HAMPRO", day)
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)
}

func TestBaselineReportAggregatesAccounts(t *testing.T) {
	t.Parallel()

	dual := NewDualLedger(seededLoader(t), seededDaily(), []string{"HAMPRO", "IBKR_GUN"})
	rep, err := dual.GetBaselineReport(day)
	require.NoError(t, err)

	assert.Equal(t, 600, rep.BySymbol["AAPL"].Qty)
	assert.Equal(t, -100, rep.BySymbol["TSLA"].Qty)
	assert.InDelta(t, 74000.0+14900.0, rep.LongNotional, 1e-9)
	assert.InDelta(t, 21000.0, rep.ShortNotional, 1e-9)
}

func TestCombinedReportMergesBothLedgers(t *testing.T) {
	t.Parallel()

	dual := NewDualLedger(seededLoader(t), seededDaily(), []string{"HAMPRO", "IBKR_GUN"})
	rep, err := dual.GenerateCombinedReport(day)
	require.NoError(t, err)

	// AAPL and TSLA from the baseline, MSFT only from intraday.
	require.Len(t, rep.Rows, 3)
	assert.Equal(t, "AAPL", rep.Rows[0].Symbol)
	assert.Equal(t, "MSFT", rep.Rows[1].Symbol)
	assert.Equal(t, "TSLA", rep.Rows[2].Symbol)

	aapl := rep.Rows[0]
	assert.Equal(t, 600, aapl.BefdayQty)
	assert.Equal(t, -200, aapl.IntradayNetQtyChange)
	assert.Equal(t, 400, aapl.EndQty)

	msft := rep.Rows[1]
	assert.Zero(t, msft.BefdayQty)
	assert.Equal(t, 50, msft.EndQty)

	tsla := rep.Rows[2]
	assert.Equal(t, -100, tsla.EndQty, "no intraday activity keeps the baseline")
	// Baseline notional stays at its snapshot value.
	assert.InDelta(t, 21000.0, tsla.BefdayNotional, 1e-9)
}
