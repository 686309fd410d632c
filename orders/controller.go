package orders

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hampro/tradecore/pkg/id"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrTerminal        = errors.New("order already terminal")
	ErrUnknownProvider = errors.New("unknown provider partition")
)

// HoldUnclassified is the policy applied to fills that match no tracked
// order: they are held for manual reconciliation, never dropped.
const HoldUnclassified = "HOLD_UNCLASSIFIED"

// CancelFunc asks the external venue to cancel an order.
type CancelFunc func(provider, orderID string) error

// PriceFunc returns the current market price for a symbol; ok is false when
// no price is available.
type PriceFunc func(symbol string) (price float64, ok bool)

// Config tunes the controller's background loops.
type Config struct {
	CancelCheckInterval time.Duration
	MaxOrderAge         time.Duration

	// CancelUnfilled widens the cancel sweep to partially filled orders.
	CancelUnfilled bool

	ReplaceCheckInterval      time.Duration
	MaxReplaceCount           int
	ReplacePartialFills       bool
	PriceImprovementThreshold float64

	// ShutdownGrace bounds how long Stop waits for the loops to drain.
	ShutdownGrace time.Duration
}

// HeldFill is an unmatched fill parked for manual reconciliation.
type HeldFill struct {
	Provider   string
	OrderID    string
	FilledQty  int
	Price      float64
	Policy     string
	ReceivedAt time.Time
}

// Controller is the order registry and lifecycle state machine. The registry
// mutex is held only for registry mutations, never across the external
// cancel callback, the price function, or any hook.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
	newID    func() string
	orders   map[string]map[string]*Order // provider → order_id
	byIntent map[string]*Order
	held     []HeldFill

	cancelFn   CancelFunc
	priceFn    PriceFunc
	onTerminal func(Order)
	onHold     func(HeldFill)

	stopLoops func()
	loopsDone chan struct{}
}

// NewController creates an empty registry. A nil logger falls back to
// slog.Default().
func NewController(cfg Config, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		newID:    id.New,
		orders:   make(map[string]map[string]*Order),
		byIntent: make(map[string]*Order),
	}
}

// SetCancelFunc installs the external cancel callback used by Cancel and the
// cancel loop.
func (c *Controller) SetCancelFunc(fn CancelFunc) { c.cancelFn = fn }

// SetPriceFunc installs the market-price source used by the replace loop.
func (c *Controller) SetPriceFunc(fn PriceFunc) { c.priceFn = fn }

// SetTerminalHook installs a callback invoked (outside the registry lock)
// whenever an order reaches a terminal state.
func (c *Controller) SetTerminalHook(fn func(Order)) { c.onTerminal = fn }

// SetHoldHook installs a callback invoked (outside the registry lock)
// whenever an unmatched fill is held.
func (c *Controller) SetHoldHook(fn func(HeldFill)) { c.onHold = fn }

// RegisterIfAbsent atomically registers the order unless one already exists
// for its intent ID, closing the check-then-register race under concurrent
// redelivery. Returns the registered (or pre-existing) order and whether a
// new order was created.
func (c *Controller) RegisterIfAbsent(o Order) (Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byIntent[o.IntentID]; ok && o.IntentID != "" {
		return *existing, false
	}

	if o.ID == "" {
		o.ID = c.newID()
	}
	if o.CorrelationID == "" {
		o.CorrelationID = o.ID
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = c.now()
	}

	part, ok := c.orders[o.Provider]
	if !ok {
		part = make(map[string]*Order)
		c.orders[o.Provider] = part
	}
	stored := o
	part[stored.ID] = &stored
	if stored.IntentID != "" {
		c.byIntent[stored.IntentID] = &stored
	}
	return stored, true
}

// Get returns a copy of the order within the given provider partition.
func (c *Controller) Get(provider, orderID string) (Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.lookupLocked(provider, orderID)
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// LookupIntent returns the order created for an intent, if any.
func (c *Controller) LookupIntent(intentID string) (Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.byIntent[intentID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// MarkSent transitions a pending order to SENT.
func (c *Controller) MarkSent(provider, orderID string) (Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.lookupLocked(provider, orderID)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s/%s", ErrNotFound, provider, orderID)
	}
	if o.Status.Terminal() {
		return *o, ErrTerminal
	}
	if o.Status == StatusPending {
		o.Status = StatusSent
		o.SentAt = c.now()
	}
	return *o, nil
}

// ApplyFill applies a fill to the order. A fill referencing an order absent
// from its provider partition is never dropped: it is logged at the highest
// severity and held under the HOLD_UNCLASSIFIED policy.
func (c *Controller) ApplyFill(provider, orderID string, qty int, price float64) (Order, error) {
	c.mu.Lock()

	o, ok := c.lookupLocked(provider, orderID)
	if !ok {
		held := HeldFill{
			Provider:   provider,
			OrderID:    orderID,
			FilledQty:  qty,
			Price:      price,
			Policy:     HoldUnclassified,
			ReceivedAt: c.now(),
		}
		c.held = append(c.held, held)
		c.mu.Unlock()

		c.log.Error("unmatched fill held for manual reconciliation",
			"policy", HoldUnclassified, "provider", provider,
			"order_id", orderID, "qty", qty, "price", price)
		if c.onHold != nil {
			c.onHold(held)
		}
		return Order{}, fmt.Errorf("%w: %s/%s", ErrNotFound, provider, orderID)
	}

	if o.Status.Terminal() {
		cp := *o
		c.mu.Unlock()
		return cp, ErrTerminal
	}
	if qty < 0 {
		cp := *o
		c.mu.Unlock()
		return cp, fmt.Errorf("negative fill qty %d for %s/%s", qty, provider, orderID)
	}

	o.FilledQty += qty
	if o.FilledQty > o.LotQty {
		// Overfill from the venue: clamp and surface, do not propagate a
		// negative remaining quantity.
		c.log.Error("fill exceeds order quantity, clamping",
			"provider", provider, "order_id", orderID,
			"filled", o.FilledQty, "lot_qty", o.LotQty)
		o.FilledQty = o.LotQty
	}
	if o.FilledQty == o.LotQty {
		o.Status = StatusFilled
		o.FilledAt = c.now()
	} else {
		o.Status = StatusPartial
	}

	cp := *o
	c.mu.Unlock()

	if cp.Status.Terminal() && c.onTerminal != nil {
		c.onTerminal(cp)
	}
	return cp, nil
}

// Cancel cancels an active order: the external cancel callback runs first
// (outside the lock), then the order is marked CANCELLED. A missing order is
// a logged no-op.
func (c *Controller) Cancel(provider, orderID, reason string) (Order, error) {
	c.mu.Lock()
	o, ok := c.lookupLocked(provider, orderID)
	if !ok {
		c.mu.Unlock()
		c.log.Warn("cancel for unknown order", "provider", provider, "order_id", orderID)
		return Order{}, fmt.Errorf("%w: %s/%s", ErrNotFound, provider, orderID)
	}
	if o.Status.Terminal() {
		cp := *o
		c.mu.Unlock()
		return cp, ErrTerminal
	}
	c.mu.Unlock()

	if c.cancelFn != nil {
		if err := c.cancelFn(provider, orderID); err != nil {
			c.log.Warn("external cancel failed, marking cancelled anyway",
				"provider", provider, "order_id", orderID, "error", err)
		}
	}

	c.mu.Lock()
	o, ok = c.lookupLocked(provider, orderID)
	if !ok || o.Status.Terminal() {
		var cp Order
		if ok {
			cp = *o
		}
		c.mu.Unlock()
		return cp, ErrTerminal
	}
	o.Status = StatusCancelled
	o.CancelledAt = c.now()
	cp := *o
	c.mu.Unlock()

	c.log.Info("order cancelled", "provider", provider, "order_id", orderID,
		"reason", reason, "filled_qty", cp.FilledQty)
	if c.onTerminal != nil {
		c.onTerminal(cp)
	}
	return cp, nil
}

// CancelWhere cancels every active order matching pred and returns the
// cancelled orders. Used by the hard-cap circuit breaker.
func (c *Controller) CancelWhere(pred func(Order) bool, reason string) []Order {
	c.mu.Lock()
	type target struct{ provider, id string }
	var targets []target
	for provider, part := range c.orders {
		for _, o := range part {
			if o.Status.Active() && !o.OrphanedProvider && pred(*o) {
				targets = append(targets, target{provider, o.ID})
			}
		}
	}
	c.mu.Unlock()

	var cancelled []Order
	for _, t := range targets {
		if o, err := c.Cancel(t.provider, t.id, reason); err == nil {
			cancelled = append(cancelled, o)
		}
	}
	return cancelled
}

// MarkRejected marks an active order REJECTED (venue refused it).
func (c *Controller) MarkRejected(provider, orderID, reason string) (Order, error) {
	return c.markTerminal(provider, orderID, StatusRejected, reason)
}

// MarkExpired marks an active order EXPIRED.
func (c *Controller) MarkExpired(provider, orderID, reason string) (Order, error) {
	return c.markTerminal(provider, orderID, StatusExpired, reason)
}

func (c *Controller) markTerminal(provider, orderID string, status Status, reason string) (Order, error) {
	c.mu.Lock()
	o, ok := c.lookupLocked(provider, orderID)
	if !ok {
		c.mu.Unlock()
		c.log.Warn("status update for unknown order",
			"provider", provider, "order_id", orderID, "status", status)
		return Order{}, fmt.Errorf("%w: %s/%s", ErrNotFound, provider, orderID)
	}
	if o.Status.Terminal() {
		cp := *o
		c.mu.Unlock()
		return cp, ErrTerminal
	}
	o.Status = status
	cp := *o
	c.mu.Unlock()

	c.log.Info("order closed", "provider", provider, "order_id", orderID,
		"status", status, "reason", reason)
	if c.onTerminal != nil {
		c.onTerminal(cp)
	}
	return cp, nil
}

// Replace retires an active order and registers a successor for the
// remaining quantity at the new price. The successor inherits provider,
// book, classification, and correlation ID, with an incremented replace
// count.
func (c *Controller) Replace(provider, orderID string, newPrice float64) (Order, error) {
	c.mu.Lock()

	o, ok := c.lookupLocked(provider, orderID)
	if !ok {
		c.mu.Unlock()
		c.log.Warn("replace for unknown order", "provider", provider, "order_id", orderID)
		return Order{}, fmt.Errorf("%w: %s/%s", ErrNotFound, provider, orderID)
	}
	if !o.Status.Active() || o.OrphanedProvider {
		cp := *o
		c.mu.Unlock()
		return cp, ErrTerminal
	}

	o.Status = StatusReplaced
	old := *o

	successor := Order{
		ID:             c.newID(),
		IntentID:       old.IntentID,
		Symbol:         old.Symbol,
		Action:         old.Action,
		LotQty:         old.RemainingQty(),
		Price:          newPrice,
		Status:         StatusSent,
		Provider:       old.Provider,
		Book:           old.Book,
		Classification: old.Classification,
		ReplaceCount:   old.ReplaceCount + 1,
		CorrelationID:  old.CorrelationID,
		CreatedAt:      c.now(),
		SentAt:         c.now(),
	}
	stored := successor
	c.orders[provider][stored.ID] = &stored
	if stored.IntentID != "" {
		c.byIntent[stored.IntentID] = &stored
	}
	c.mu.Unlock()

	c.log.Info("order replaced",
		"provider", provider, "order_id", old.ID, "successor_id", successor.ID,
		"remaining_qty", successor.LotQty, "old_price", old.Price, "new_price", newPrice,
		"replace_count", successor.ReplaceCount, "correlation_id", successor.CorrelationID)
	if c.onTerminal != nil {
		c.onTerminal(old)
	}
	return successor, nil
}

// MarkOrphaned marks every active order in the provider's partition ORPHANED
// after the provider is decommissioned. Orphaned orders are excluded from the
// cancel and replace loops but stay visible for manual handling.
func (c *Controller) MarkOrphaned(provider string) int {
	c.mu.Lock()
	part, ok := c.orders[provider]
	if !ok {
		c.mu.Unlock()
		return 0
	}
	var marked []Order
	for _, o := range part {
		if o.Status.Active() {
			o.Status = StatusOrphaned
			o.OrphanedProvider = true
			marked = append(marked, *o)
		}
	}
	c.mu.Unlock()

	if len(marked) > 0 {
		c.log.Warn("provider decommissioned, orders orphaned",
			"provider", provider, "count", len(marked))
	}
	for _, o := range marked {
		if c.onTerminal != nil {
			c.onTerminal(o)
		}
	}
	return len(marked)
}

// ActiveOrders returns copies of every active order across all partitions.
func (c *Controller) ActiveOrders() []Order {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Order
	for _, part := range c.orders {
		for _, o := range part {
			if o.Status.Active() {
				out = append(out, *o)
			}
		}
	}
	return out
}

// HeldFills returns the fills parked under HOLD_UNCLASSIFIED.
func (c *Controller) HeldFills() []HeldFill {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]HeldFill, len(c.held))
	copy(out, c.held)
	return out
}

func (c *Controller) lookupLocked(provider, orderID string) (*Order, bool) {
	part, ok := c.orders[provider]
	if !ok {
		return nil, false
	}
	o, ok := part[orderID]
	return o, ok
}
