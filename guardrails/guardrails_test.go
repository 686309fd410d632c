package guardrails

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hampro/tradecore/store"
)

func findCheck(t *testing.T, checks []Check, name string) Check {
	t.Helper()
	for _, c := range checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %s not evaluated", name)
	return Check{}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestDuplicateOrderBlocked(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{DuplicateWindow: 60 * time.Second}, nil)

	req := OrderRequest{Symbol: "AAPL", Action: "BUY", LotQty: 100}

	passed, checks := e.CheckAll(req)
	assert.True(t, passed)
	assert.True(t, findCheck(t, checks, CheckDuplicate).Passed)

	e.RecordOrder("AAPL", "BUY", 100)

	passed, checks = e.CheckAll(req)
	assert.False(t, passed)
	dup := findCheck(t, checks, CheckDuplicate)
	assert.False(t, dup.Passed)
	assert.Equal(t, CheckDuplicate, dup.Name)

	// A different quantity is not an exact duplicate.
	passed, _ = e.CheckAll(OrderRequest{Symbol: "AAPL", Action: "BUY", LotQty: 50})
	assert.True(t, passed)
}

func TestSameSymbolCooldown(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{SameSymbolCooldown: 30 * time.Second}, nil)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	e.SetClock(fixedClock(now))

	e.RecordOrder("AAPL", "BUY", 100)

	// Any order on the symbol is throttled, even a different shape.
	passed, checks := e.CheckAll(OrderRequest{Symbol: "AAPL", Action: "SELL", LotQty: 25})
	assert.False(t, passed)
	assert.False(t, findCheck(t, checks, CheckSymbolCooldown).Passed)

	// Other symbols are unaffected.
	passed, _ = e.CheckAll(OrderRequest{Symbol: "MSFT", Action: "BUY", LotQty: 25})
	assert.True(t, passed)

	e.SetClock(fixedClock(now.Add(31 * time.Second)))
	passed, _ = e.CheckAll(OrderRequest{Symbol: "AAPL", Action: "SELL", LotQty: 25})
	assert.True(t, passed)
}

func TestBefdayMaxalwScenario(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{
		MaxCompanyExposurePct:  1.0,
		BefdayMaxalwMultiplier: 0.75,
	}, nil)

	zero := 0
	base := OrderRequest{
		Symbol:          "AAPL",
		Action:          "BUY",
		Maxalw:          1000,
		CurrentPosition: &zero,
		BefdayPosition:  &zero,
	}

	big := base
	big.LotQty = 800
	passed, checks := e.CheckAll(big)
	assert.False(t, passed, "potential daily change 800 exceeds 750")
	befday := findCheck(t, checks, CheckBefdayMaxalw)
	assert.False(t, befday.Passed)
	assert.Equal(t, 800, befday.Details["potential_daily_change"])

	ok := base
	ok.LotQty = 700
	passed, _ = e.CheckAll(ok)
	assert.True(t, passed)
}

func TestMaxalwAbsoluteLimit(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{MaxCompanyExposurePct: 0.5}, nil)
	pos := 400
	passed, checks := e.CheckAll(OrderRequest{
		Symbol: "AAPL", Action: "BUY", LotQty: 200,
		Maxalw: 1000, CurrentPosition: &pos, BefdayPosition: &pos,
	})
	assert.False(t, passed, "projected 600 exceeds 1000*0.5")
	assert.False(t, findCheck(t, checks, CheckMaxalw).Passed)

	passed, _ = e.CheckAll(OrderRequest{
		Symbol: "AAPL", Action: "BUY", LotQty: 100,
		Maxalw: 1000, CurrentPosition: &pos, BefdayPosition: &pos,
	})
	assert.True(t, passed)
}

func TestDailyLimitsMonotonic(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{
		MaxDailyChangePerSymbol: 300,
		MaxDailyChangeTotal:     500,
		MaxDailyOrders:          3,
	}, nil)

	req := OrderRequest{Symbol: "AAPL", Action: "BUY", LotQty: 200}

	passed, _ := e.CheckAll(req)
	require.True(t, passed)
	e.RecordOrder("AAPL", "BUY", 200)

	// 200 used: another 200 would breach the 300 per-symbol ceiling.
	passed, checks := e.CheckAll(req)
	assert.False(t, passed)
	assert.False(t, findCheck(t, checks, CheckDailySymbol).Passed)

	// Monotonicity: more usage can only keep it failing.
	e.RecordOrder("MSFT", "BUY", 200)
	passed, checks = e.CheckAll(req)
	assert.False(t, passed)
	assert.False(t, findCheck(t, checks, CheckDailySymbol).Passed)
	assert.False(t, findCheck(t, checks, CheckDailyTotal).Passed, "total 400+200 > 500")

	e.RecordOrder("NVDA", "BUY", 50)
	passed, checks = e.CheckAll(OrderRequest{Symbol: "TSLA", Action: "BUY", LotQty: 10})
	assert.False(t, passed)
	assert.False(t, findCheck(t, checks, CheckDailyOrders).Passed, "3 orders at limit 3")
}

func TestDailyResetOnBoundaryCross(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{
		MaxDailyOrders: 1,
		ResetTime:      "09:30",
	}, nil)
	day1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	e.SetClock(fixedClock(day1))

	e.RecordOrder("AAPL", "BUY", 100)
	passed, _ := e.CheckAll(OrderRequest{Symbol: "MSFT", Action: "BUY", LotQty: 10})
	require.False(t, passed)

	// Just before the next boundary: still the same trading day.
	e.SetClock(fixedClock(time.Date(2026, 3, 3, 9, 29, 0, 0, time.UTC)))
	e.mu.Lock()
	e.lastReset = day1
	e.mu.Unlock()
	passed, _ = e.CheckAll(OrderRequest{Symbol: "MSFT", Action: "BUY", LotQty: 10})
	assert.False(t, passed)

	// First check past the boundary triggers the reset.
	e.SetClock(fixedClock(time.Date(2026, 3, 3, 9, 31, 0, 0, time.UTC)))
	e.mu.Lock()
	e.lastReset = day1
	e.mu.Unlock()
	passed, _ = e.CheckAll(OrderRequest{Symbol: "MSFT", Action: "BUY", LotQty: 10})
	assert.True(t, passed)
}

func TestOpenOrderLimits(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{MaxOpenOrders: 2, MaxOpenOrdersPerSymbol: 1}, nil)

	e.RecordOrder("AAPL", "BUY", 100)

	passed, checks := e.CheckAll(OrderRequest{Symbol: "AAPL", Action: "SELL", LotQty: 50})
	assert.False(t, passed)
	assert.False(t, findCheck(t, checks, CheckSymbolOpen).Passed)

	passed, _ = e.CheckAll(OrderRequest{Symbol: "MSFT", Action: "BUY", LotQty: 50})
	assert.True(t, passed)
	e.RecordOrder("MSFT", "BUY", 50)

	passed, checks = e.CheckAll(OrderRequest{Symbol: "NVDA", Action: "BUY", LotQty: 50})
	assert.False(t, passed)
	assert.False(t, findCheck(t, checks, CheckOpenOrders).Passed)

	// Completing an order frees its slot.
	e.RecordOrderComplete("AAPL")
	passed, _ = e.CheckAll(OrderRequest{Symbol: "NVDA", Action: "BUY", LotQty: 50})
	assert.True(t, passed)
}

func TestPositionAndValueLimits(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{MaxPositionPerSymbol: 500, MaxOrderValue: 10000}, nil)
	e.UpdatePosition("AAPL", -450)

	// Shorts count by absolute size.
	passed, checks := e.CheckAll(OrderRequest{Symbol: "AAPL", Action: "SELL", LotQty: 100})
	assert.False(t, passed)
	assert.False(t, findCheck(t, checks, CheckPositionLimit).Passed)

	// Buying back reduces the absolute position.
	passed, _ = e.CheckAll(OrderRequest{Symbol: "AAPL", Action: "BUY", LotQty: 100})
	assert.True(t, passed)

	passed, checks = e.CheckAll(OrderRequest{Symbol: "MSFT", Action: "BUY", LotQty: 30, Price: 400})
	assert.False(t, passed)
	assert.False(t, findCheck(t, checks, CheckOrderValue).Passed, "12000 > 10000")
}

func TestDayStatePersistence(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

	e := NewEngine(Config{MaxDailyOrders: 5}, nil)
	e.SetClock(fixedClock(now))
	e.RecordOrder("AAPL", "BUY", 100)
	e.RecordOrder("MSFT", "SELL", 40)
	require.NoError(t, e.SaveTo(st))

	// Same-day restart restores counters.
	fresh := NewEngine(Config{MaxDailyOrders: 5}, nil)
	fresh.SetClock(fixedClock(now.Add(time.Hour)))
	ok, err := fresh.LoadFrom(st)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, fresh.Snapshot().DailyOrderCount)
	assert.Equal(t, 100, fresh.Snapshot().DailySymbol["AAPL"])

	// Next-day restart discards the stale snapshot.
	nextDay := NewEngine(Config{MaxDailyOrders: 5}, nil)
	nextDay.SetClock(fixedClock(now.AddDate(0, 0, 1)))
	ok, err = nextDay.LoadFrom(st)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, nextDay.Snapshot().DailyOrderCount)
}
