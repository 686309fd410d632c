package orders

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(cfg Config) *Controller {
	c := NewController(cfg, nil)
	seq := 0
	c.newID = func() string {
		seq++
		return fmt.Sprintf("ord-%d", seq)
	}
	return c
}

func baseOrder() Order {
	return Order{
		IntentID:       "evt-1",
		Symbol:         "AAPL",
		Action:         "SELL",
		LotQty:         100,
		Price:          187.50,
		Provider:       "HAMPRO",
		Book:           "LT",
		Classification: "LONG_DECREASE",
	}
}

func TestRegisterIfAbsent_Idempotent(t *testing.T) {
	t.Parallel()

	c := newTestController(Config{})

	first, created := c.RegisterIfAbsent(baseOrder())
	require.True(t, created)
	assert.Equal(t, StatusPending, first.Status)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, first.ID, first.CorrelationID)

	second, created := c.RegisterIfAbsent(baseOrder())
	assert.False(t, created, "same intent_id must not create a second order")
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, c.ActiveOrders(), 1)
}

func TestFillConservation(t *testing.T) {
	t.Parallel()

	c := newTestController(Config{})
	o, _ := c.RegisterIfAbsent(baseOrder())
	_, err := c.MarkSent(o.Provider, o.ID)
	require.NoError(t, err)

	got, err := c.ApplyFill(o.Provider, o.ID, 40, 187.40)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, got.Status)
	assert.Equal(t, 40, got.FilledQty)
	assert.Equal(t, 60, got.RemainingQty())

	got, err = c.ApplyFill(o.Provider, o.ID, 60, 187.45)
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, got.Status)
	assert.Equal(t, 100, got.FilledQty)
	assert.Equal(t, 0, got.RemainingQty())

	// Terminal orders accept no further fills.
	_, err = c.ApplyFill(o.Provider, o.ID, 1, 187.45)
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestFillOverflowClamped(t *testing.T) {
	t.Parallel()

	c := newTestController(Config{})
	o, _ := c.RegisterIfAbsent(baseOrder())

	got, err := c.ApplyFill(o.Provider, o.ID, 150, 187.40)
	require.NoError(t, err)
	assert.Equal(t, 100, got.FilledQty, "overfill must clamp at lot_qty")
	assert.Equal(t, StatusFilled, got.Status)
}

func TestUnmatchedFillHeld(t *testing.T) {
	t.Parallel()

	c := newTestController(Config{})
	var hooked []HeldFill
	c.SetHoldHook(func(h HeldFill) { hooked = append(hooked, h) })

	_, err := c.ApplyFill("IBKR_GUN", "ghost-1", 25, 99.0)
	assert.ErrorIs(t, err, ErrNotFound)

	held := c.HeldFills()
	require.Len(t, held, 1)
	assert.Equal(t, HoldUnclassified, held[0].Policy)
	assert.Equal(t, "IBKR_GUN", held[0].Provider)
	assert.Equal(t, "ghost-1", held[0].OrderID)
	assert.Equal(t, 25, held[0].FilledQty)
	require.Len(t, hooked, 1)
}

func TestOrderIDScopedToProvider(t *testing.T) {
	t.Parallel()

	c := newTestController(Config{})
	o := baseOrder()
	o.ID = "dup-id"
	_, created := c.RegisterIfAbsent(o)
	require.True(t, created)

	o2 := baseOrder()
	o2.ID = "dup-id"
	o2.IntentID = "evt-2"
	o2.Provider = "IBKR_PED"
	_, created = c.RegisterIfAbsent(o2)
	require.True(t, created)

	// A fill on the wrong partition must not touch the other partition's
	// order with the same ID.
	_, err := c.ApplyFill("IBKR_GUN", "dup-id", 10, 1.0)
	assert.ErrorIs(t, err, ErrNotFound)

	got, ok := c.Get("HAMPRO", "dup-id")
	require.True(t, ok)
	assert.Equal(t, 0, got.FilledQty)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	c := newTestController(Config{})
	var externalCancels []string
	c.SetCancelFunc(func(provider, orderID string) error {
		externalCancels = append(externalCancels, provider+"/"+orderID)
		return nil
	})

	o, _ := c.RegisterIfAbsent(baseOrder())
	got, err := c.Cancel(o.Provider, o.ID, "test")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.False(t, got.CancelledAt.IsZero())
	assert.Equal(t, []string{"HAMPRO/" + o.ID}, externalCancels)

	// Cancelling again is rejected; unknown order is a logged no-op error.
	_, err = c.Cancel(o.Provider, o.ID, "test")
	assert.ErrorIs(t, err, ErrTerminal)
	_, err = c.Cancel("HAMPRO", "missing", "test")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelWhere_Classification(t *testing.T) {
	t.Parallel()

	c := newTestController(Config{})
	inc := baseOrder()
	inc.IntentID = "evt-inc"
	inc.Classification = "LONG_INCREASE"
	dec := baseOrder()
	dec.IntentID = "evt-dec"
	dec.Classification = "LONG_DECREASE"

	c.RegisterIfAbsent(inc)
	c.RegisterIfAbsent(dec)

	cancelled := c.CancelWhere(func(o Order) bool {
		return o.Classification == "LONG_INCREASE"
	}, "hard cap")

	require.Len(t, cancelled, 1)
	assert.Equal(t, "LONG_INCREASE", cancelled[0].Classification)

	survivor, _ := c.LookupIntent("evt-dec")
	assert.Equal(t, StatusPending, survivor.Status)
}

func TestReplace(t *testing.T) {
	t.Parallel()

	c := newTestController(Config{})
	o, _ := c.RegisterIfAbsent(baseOrder())
	_, err := c.MarkSent(o.Provider, o.ID)
	require.NoError(t, err)
	_, err = c.ApplyFill(o.Provider, o.ID, 30, 187.40)
	require.NoError(t, err)

	successor, err := c.Replace(o.Provider, o.ID, 186.90)
	require.NoError(t, err)

	assert.Equal(t, 70, successor.LotQty, "successor carries the remaining quantity")
	assert.Equal(t, 186.90, successor.Price)
	assert.Equal(t, 1, successor.ReplaceCount)
	assert.Equal(t, o.CorrelationID, successor.CorrelationID)
	assert.Equal(t, o.Provider, successor.Provider)
	assert.Equal(t, o.Classification, successor.Classification)
	assert.Equal(t, StatusSent, successor.Status)

	old, ok := c.Get(o.Provider, o.ID)
	require.True(t, ok)
	assert.Equal(t, StatusReplaced, old.Status)

	// The intent now maps to the successor.
	current, ok := c.LookupIntent(o.IntentID)
	require.True(t, ok)
	assert.Equal(t, successor.ID, current.ID)
}

func TestMarkOrphaned(t *testing.T) {
	t.Parallel()

	c := newTestController(Config{})
	a := baseOrder()
	b := baseOrder()
	b.IntentID = "evt-2"
	other := baseOrder()
	other.IntentID = "evt-3"
	other.Provider = "IBKR_PED"

	c.RegisterIfAbsent(a)
	c.RegisterIfAbsent(b)
	c.RegisterIfAbsent(other)

	marked := c.MarkOrphaned("HAMPRO")
	assert.Equal(t, 2, marked)

	got, _ := c.LookupIntent("evt-1")
	assert.Equal(t, StatusOrphaned, got.Status)
	assert.True(t, got.OrphanedProvider)

	// Other partitions are untouched; orphan sweep is per-partition.
	got, _ = c.LookupIntent("evt-3")
	assert.Equal(t, StatusPending, got.Status)

	// Orphaned orders are out of reach of further automation.
	_, err := c.Replace("HAMPRO", got.ID, 1.0)
	assert.Error(t, err)
}

func TestTerminalHookFires(t *testing.T) {
	t.Parallel()

	c := newTestController(Config{})
	var terminal []Status
	c.SetTerminalHook(func(o Order) { terminal = append(terminal, o.Status) })

	o, _ := c.RegisterIfAbsent(baseOrder())
	_, err := c.ApplyFill(o.Provider, o.ID, 100, 187.0)
	require.NoError(t, err)

	require.Len(t, terminal, 1)
	assert.Equal(t, StatusFilled, terminal[0])
}

func TestMarkRejectedAndExpired(t *testing.T) {
	t.Parallel()

	c := newTestController(Config{})
	o, _ := c.RegisterIfAbsent(baseOrder())
	got, err := c.MarkRejected(o.Provider, o.ID, "venue refused")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)

	p := baseOrder()
	p.IntentID = "evt-2"
	o2, _ := c.RegisterIfAbsent(p)
	got, err = c.MarkExpired(o2.Provider, o2.ID, "day order lapsed")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
}
