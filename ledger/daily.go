package ledger

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hampro/tradecore/event"
	"github.com/hampro/tradecore/store"
)

// Entry is one (date, symbol, classification) ledger bucket. Entries only
// ever accumulate; nothing decrements them.
type Entry struct {
	Date           string  `json:"date"`
	Symbol         string  `json:"symbol"`
	Classification string  `json:"classification"`
	FilledQty      int     `json:"filled_qty"`
	FilledNotional float64 `json:"filled_notional"`
	RealizedPnL    float64 `json:"realized_pnl"`
	CountFills     int     `json:"count_fills"`
	NetQtyChange   int     `json:"net_qty_change"`
}

// Totals aggregates entries for summary views.
type Totals struct {
	FilledQty      int     `json:"filled_qty"`
	FilledNotional float64 `json:"filled_notional"`
	RealizedPnL    float64 `json:"realized_pnl"`
	CountFills     int     `json:"count_fills"`
	NetQtyChange   int     `json:"net_qty_change"`
}

func (t *Totals) add(e *Entry) {
	t.FilledQty += e.FilledQty
	t.FilledNotional += e.FilledNotional
	t.RealizedPnL += e.RealizedPnL
	t.CountFills += e.CountFills
	t.NetQtyChange += e.NetQtyChange
}

// Summary is the aggregated view of one trading day.
type Summary struct {
	Date             string            `json:"date"`
	ByClassification map[string]Totals `json:"by_classification"`
	BySymbol         map[string]Totals `json:"by_symbol"`
	Totals           Totals            `json:"totals"`
}

// Daily accumulates fills into ledger entries via the intraday tracker.
type Daily struct {
	mu      sync.Mutex
	tracker *Tracker
	entries map[string]*Entry // date:symbol:classification
	log     *slog.Logger
	now     func() time.Time
	st      store.Store // optional durable mirror of the entries
}

// NewDaily creates a ledger backed by the given tracker. A nil logger falls
// back to slog.Default().
func NewDaily(tracker *Tracker, log *slog.Logger) *Daily {
	if tracker == nil {
		tracker = NewTracker()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Daily{
		tracker: tracker,
		entries: make(map[string]*Entry),
		log:     log,
		now:     time.Now,
	}
}

// SetNow overrides the clock used for dating fills.
func (d *Daily) SetNow(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.now = now
}

// SetStore mirrors every updated entry into the state store under
// ledger:<date>:<symbol>:<classification>, so reporting tools can read the
// ledger without the worker process.
func (d *Daily) SetStore(st store.Store) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.st = st
}

// RecordFill folds an order event into the ledger. Events that are not fills
// (ACCEPTED, WORKING, CANCELED, ...) are ignored.
func (d *Daily) RecordFill(ev event.OrderEvent) {
	if ev.Action != event.StatusFilled && ev.Action != event.StatusPartialFill {
		return
	}

	qty := ev.FilledQuantity
	if qty <= 0 {
		d.log.Warn("fill event without filled quantity", "order_id", ev.OrderID)
		return
	}
	price := ev.AvgFillPrice
	date := d.today()

	realized, _ := d.tracker.UpdatePosition(ev.AccountID, ev.Symbol, qty, price, ev.OrderAction, date)

	signed := qty
	if ev.OrderAction == event.ActionSell {
		signed = -qty
	}
	notional := math.Abs(float64(qty) * price)

	d.mu.Lock()
	key := date + ":" + ev.Symbol + ":" + ev.Classification
	e, ok := d.entries[key]
	if !ok {
		e = &Entry{Date: date, Symbol: ev.Symbol, Classification: ev.Classification}
		d.entries[key] = e
	}
	e.FilledQty += qty
	e.FilledNotional += notional
	e.RealizedPnL += realized
	e.CountFills++
	e.NetQtyChange += signed
	cp := *e
	st := d.st
	d.mu.Unlock()

	d.log.Debug("ledger fill recorded",
		"symbol", ev.Symbol, "classification", ev.Classification,
		"qty", qty, "price", price, "realized_pnl", realized)

	if st != nil {
		if err := st.Set("ledger:"+key, entryDoc(cp)); err != nil {
			d.log.Warn("ledger entry persist failed", "key", key, "error", err)
		}
	}
}

// GetDailySummary aggregates the stored entries for a date by classification
// and by symbol. Pure read; no side effects.
func (d *Daily) GetDailySummary(date string) Summary {
	d.mu.Lock()
	defer d.mu.Unlock()

	var entries []Entry
	for _, e := range d.entries {
		if e.Date == date {
			entries = append(entries, *e)
		}
	}
	return Summarize(date, entries)
}

// Entries returns copies of the ledger entries for a date.
func (d *Daily) Entries(date string) []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Entry
	for _, e := range d.entries {
		if e.Date == date {
			out = append(out, *e)
		}
	}
	return out
}

// Reset drops all entries for dates before the given ISO date. Called at the
// daily boundary alongside the tracker prune.
func (d *Daily) Reset(before string) {
	d.mu.Lock()
	for key, e := range d.entries {
		if e.Date < before {
			delete(d.entries, key)
		}
	}
	d.mu.Unlock()

	d.tracker.PruneBefore(before)
}

func (d *Daily) today() string {
	return d.now().UTC().Format("2006-01-02")
}

func entryDoc(e Entry) map[string]any {
	return map[string]any{
		"date":            e.Date,
		"symbol":          e.Symbol,
		"classification":  e.Classification,
		"filled_qty":      e.FilledQty,
		"filled_notional": e.FilledNotional,
		"realized_pnl":    e.RealizedPnL,
		"count_fills":     e.CountFills,
		"net_qty_change":  e.NetQtyChange,
	}
}
