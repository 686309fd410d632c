// Package guardrails implements the layered pre-trade risk checks that gate
// every order before it is created. Checks read shared daily and position
// counters but never mutate them; callers record an order explicitly after it
// passes and complete it when it closes. All counters reset when the wall
// clock first crosses the configured daily reset boundary.
package guardrails

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Check names surfaced in rejection reasons.
const (
	CheckMaxalw         = "MAXALW"
	CheckBefdayMaxalw   = "BEFDAY_MAXALW"
	CheckDailySymbol    = "DAILY_SYMBOL_LIMIT"
	CheckDailyTotal     = "DAILY_TOTAL_LIMIT"
	CheckDailyOrders    = "DAILY_ORDER_COUNT"
	CheckOpenOrders     = "OPEN_ORDER_LIMIT"
	CheckSymbolOpen     = "SYMBOL_OPEN_ORDER_LIMIT"
	CheckDuplicate      = "DUPLICATE_ORDER"
	CheckSymbolCooldown = "SYMBOL_COOLDOWN"
	CheckPositionLimit  = "POSITION_LIMIT"
	CheckOrderValue     = "ORDER_VALUE"
)

// Config holds the guardrail ceilings. A zero ceiling disables that check.
type Config struct {
	// MaxCompanyExposurePct scales maxalw into the absolute position ceiling
	// for the MAXALW check.
	MaxCompanyExposurePct float64

	// BefdayMaxalwMultiplier scales maxalw into the daily-churn ceiling for
	// the BEFDAY_MAXALW check. Defaults to 0.75 when unset.
	BefdayMaxalwMultiplier float64

	MaxDailyChangePerSymbol int
	MaxDailyChangeTotal     int
	MaxDailyOrders          int

	MaxOpenOrders          int
	MaxOpenOrdersPerSymbol int

	DuplicateWindow    time.Duration
	SameSymbolCooldown time.Duration

	MaxPositionPerSymbol int
	MaxOrderValue        float64

	// ResetTime is the daily counter-reset boundary as "HH:MM" wall clock in
	// Location. Empty means midnight.
	ResetTime string
	Location  *time.Location
}

// Check is the outcome of a single guardrail evaluation. It is ephemeral:
// consumed by the caller, never persisted.
type Check struct {
	Passed  bool
	Name    string
	Reason  string
	Details map[string]any
}

// OrderRequest describes the order being evaluated. CurrentPosition and
// BefdayPosition override the engine's tracked state when non-nil; Maxalw 0
// skips the exposure-capacity checks. Sector is carried into rejection
// details for audit.
type OrderRequest struct {
	Symbol          string
	Action          string
	LotQty          int
	Price           float64
	Maxalw          float64
	CurrentPosition *int
	BefdayPosition  *int
	Sector          string
}

type recentOrder struct {
	symbol string
	action string
	qty    int
	at     time.Time
}

// Engine evaluates guardrails over shared, lock-protected daily counters.
type Engine struct {
	mu  sync.Mutex
	cfg Config
	log *slog.Logger
	now func() time.Time

	lastReset         time.Time
	dailySymbolChange map[string]int
	dailyTotalChange  int
	dailyOrderCount   int

	openBySymbol map[string]int
	openTotal    int

	recent      []recentOrder
	lastOrderAt map[string]time.Time

	positions map[string]int
	befday    map[string]int
}

// NewEngine creates a guardrail engine. A nil logger falls back to
// slog.Default().
func NewEngine(cfg Config, log *slog.Logger) *Engine {
	if cfg.BefdayMaxalwMultiplier <= 0 {
		cfg.BefdayMaxalwMultiplier = 0.75
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		cfg:               cfg,
		log:               log,
		now:               time.Now,
		dailySymbolChange: make(map[string]int),
		openBySymbol:      make(map[string]int),
		lastOrderAt:       make(map[string]time.Time),
		positions:         make(map[string]int),
		befday:            make(map[string]int),
	}
	e.lastReset = e.now()
	return e
}

// CheckAll runs every enabled check in order and returns the conjunction.
// Any single failed check blocks the order (fail-closed). Checks never
// mutate counters.
func (e *Engine) CheckAll(req OrderRequest) (bool, []Check) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.maybeResetLocked()

	signed := signedQty(req.Action, req.LotQty)
	current := e.positions[req.Symbol]
	if req.CurrentPosition != nil {
		current = *req.CurrentPosition
	}
	befday := e.befday[req.Symbol]
	if req.BefdayPosition != nil {
		befday = *req.BefdayPosition
	}
	projected := current + signed

	var checks []Check
	add := func(c Check) { checks = append(checks, c) }

	if req.Maxalw > 0 && e.cfg.MaxCompanyExposurePct > 0 {
		add(e.checkMaxalw(req, projected))
	}
	if req.Maxalw > 0 {
		add(e.checkBefdayMaxalw(req, projected, befday))
	}
	if e.cfg.MaxDailyChangePerSymbol > 0 {
		add(e.checkDailySymbol(req))
	}
	if e.cfg.MaxDailyChangeTotal > 0 {
		add(e.checkDailyTotal(req))
	}
	if e.cfg.MaxDailyOrders > 0 {
		add(e.checkDailyOrders(req))
	}
	if e.cfg.MaxOpenOrders > 0 {
		add(e.checkOpenOrders(req))
	}
	if e.cfg.MaxOpenOrdersPerSymbol > 0 {
		add(e.checkSymbolOpen(req))
	}
	if e.cfg.DuplicateWindow > 0 {
		add(e.checkDuplicate(req))
	}
	if e.cfg.SameSymbolCooldown > 0 {
		add(e.checkSymbolCooldown(req))
	}
	if e.cfg.MaxPositionPerSymbol > 0 {
		add(e.checkPositionLimit(req, projected))
	}
	if e.cfg.MaxOrderValue > 0 && req.Price > 0 {
		add(e.checkOrderValue(req))
	}

	allPassed := true
	for _, c := range checks {
		if !c.Passed {
			allPassed = false
			e.log.Warn("guardrail blocked order",
				"check", c.Name, "symbol", req.Symbol, "action", req.Action,
				"lot_qty", req.LotQty, "reason", c.Reason)
		}
	}
	return allPassed, checks
}

func (e *Engine) checkMaxalw(req OrderRequest, projected int) Check {
	limit := req.Maxalw * e.cfg.MaxCompanyExposurePct
	if float64(abs(projected)) > limit {
		return fail(CheckMaxalw,
			fmt.Sprintf("projected position %d exceeds maxalw limit %.0f", projected, limit),
			map[string]any{
				"projected_position": projected,
				"limit":              limit,
				"maxalw":             req.Maxalw,
				"sector":             req.Sector,
			})
	}
	return pass(CheckMaxalw)
}

// checkBefdayMaxalw bounds the change from the start-of-day baseline, not the
// absolute position: heavy churn inside an unchanged net position still
// consumes daily capacity.
func (e *Engine) checkBefdayMaxalw(req OrderRequest, projected, befday int) Check {
	limit := req.Maxalw * e.cfg.BefdayMaxalwMultiplier
	change := abs(projected - befday)
	if float64(change) > limit {
		return fail(CheckBefdayMaxalw,
			fmt.Sprintf("potential daily change %d exceeds befday limit %.0f", change, limit),
			map[string]any{
				"potential_daily_change": change,
				"limit":                  limit,
				"befday_position":        befday,
				"projected_position":     projected,
				"sector":                 req.Sector,
			})
	}
	return pass(CheckBefdayMaxalw)
}

func (e *Engine) checkDailySymbol(req OrderRequest) Check {
	used := e.dailySymbolChange[req.Symbol]
	if used+req.LotQty > e.cfg.MaxDailyChangePerSymbol {
		return fail(CheckDailySymbol,
			fmt.Sprintf("daily change for %s would reach %d, limit %d",
				req.Symbol, used+req.LotQty, e.cfg.MaxDailyChangePerSymbol),
			map[string]any{"used": used, "lot_qty": req.LotQty, "limit": e.cfg.MaxDailyChangePerSymbol})
	}
	return pass(CheckDailySymbol)
}

func (e *Engine) checkDailyTotal(req OrderRequest) Check {
	if e.dailyTotalChange+req.LotQty > e.cfg.MaxDailyChangeTotal {
		return fail(CheckDailyTotal,
			fmt.Sprintf("total daily change would reach %d, limit %d",
				e.dailyTotalChange+req.LotQty, e.cfg.MaxDailyChangeTotal),
			map[string]any{"used": e.dailyTotalChange, "lot_qty": req.LotQty, "limit": e.cfg.MaxDailyChangeTotal})
	}
	return pass(CheckDailyTotal)
}

func (e *Engine) checkDailyOrders(req OrderRequest) Check {
	if e.dailyOrderCount+1 > e.cfg.MaxDailyOrders {
		return fail(CheckDailyOrders,
			fmt.Sprintf("daily order count %d at limit %d", e.dailyOrderCount, e.cfg.MaxDailyOrders),
			map[string]any{"count": e.dailyOrderCount, "limit": e.cfg.MaxDailyOrders})
	}
	return pass(CheckDailyOrders)
}

func (e *Engine) checkOpenOrders(req OrderRequest) Check {
	if e.openTotal+1 > e.cfg.MaxOpenOrders {
		return fail(CheckOpenOrders,
			fmt.Sprintf("open orders %d at limit %d", e.openTotal, e.cfg.MaxOpenOrders),
			map[string]any{"open": e.openTotal, "limit": e.cfg.MaxOpenOrders})
	}
	return pass(CheckOpenOrders)
}

func (e *Engine) checkSymbolOpen(req OrderRequest) Check {
	open := e.openBySymbol[req.Symbol]
	if open+1 > e.cfg.MaxOpenOrdersPerSymbol {
		return fail(CheckSymbolOpen,
			fmt.Sprintf("open orders for %s at limit %d", req.Symbol, e.cfg.MaxOpenOrdersPerSymbol),
			map[string]any{"open": open, "limit": e.cfg.MaxOpenOrdersPerSymbol})
	}
	return pass(CheckSymbolOpen)
}

func (e *Engine) checkDuplicate(req OrderRequest) Check {
	cutoff := e.now().Add(-e.cfg.DuplicateWindow)
	for _, r := range e.recent {
		if r.at.Before(cutoff) {
			continue
		}
		if r.symbol == req.Symbol && r.action == req.Action && r.qty == req.LotQty {
			return fail(CheckDuplicate,
				fmt.Sprintf("identical order (%s %s %d) seen %s ago",
					req.Symbol, req.Action, req.LotQty, e.now().Sub(r.at).Round(time.Second)),
				map[string]any{"window": e.cfg.DuplicateWindow.String(), "seen_at": r.at})
		}
	}
	return pass(CheckDuplicate)
}

func (e *Engine) checkSymbolCooldown(req OrderRequest) Check {
	last, ok := e.lastOrderAt[req.Symbol]
	if ok && e.now().Sub(last) < e.cfg.SameSymbolCooldown {
		return fail(CheckSymbolCooldown,
			fmt.Sprintf("symbol %s traded %s ago, cooldown %s",
				req.Symbol, e.now().Sub(last).Round(time.Second), e.cfg.SameSymbolCooldown),
			map[string]any{"last_order_at": last, "cooldown": e.cfg.SameSymbolCooldown.String()})
	}
	return pass(CheckSymbolCooldown)
}

func (e *Engine) checkPositionLimit(req OrderRequest, projected int) Check {
	if abs(projected) > e.cfg.MaxPositionPerSymbol {
		return fail(CheckPositionLimit,
			fmt.Sprintf("projected position %d exceeds per-symbol limit %d",
				projected, e.cfg.MaxPositionPerSymbol),
			map[string]any{"projected_position": projected, "limit": e.cfg.MaxPositionPerSymbol})
	}
	return pass(CheckPositionLimit)
}

func (e *Engine) checkOrderValue(req OrderRequest) Check {
	value := float64(req.LotQty) * req.Price
	if value > e.cfg.MaxOrderValue {
		return fail(CheckOrderValue,
			fmt.Sprintf("order value %.2f exceeds limit %.2f", value, e.cfg.MaxOrderValue),
			map[string]any{"value": value, "limit": e.cfg.MaxOrderValue})
	}
	return pass(CheckOrderValue)
}

// RecordOrder consumes daily and open-order capacity for an order that passed
// CheckAll and was created.
func (e *Engine) RecordOrder(symbol, action string, lotQty int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.maybeResetLocked()

	now := e.now()
	e.dailySymbolChange[symbol] += lotQty
	e.dailyTotalChange += lotQty
	e.dailyOrderCount++
	e.openBySymbol[symbol]++
	e.openTotal++
	e.lastOrderAt[symbol] = now
	e.recent = append(e.recent, recentOrder{symbol: symbol, action: action, qty: lotQty, at: now})
	e.pruneRecentLocked(now)
}

// RecordOrderComplete releases the open-order slot once the order reaches a
// terminal state.
func (e *Engine) RecordOrderComplete(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.openBySymbol[symbol] > 0 {
		e.openBySymbol[symbol]--
	}
	if e.openTotal > 0 {
		e.openTotal--
	}
}

// UpdatePosition applies a signed fill quantity to the tracked position.
func (e *Engine) UpdatePosition(symbol string, delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.positions[symbol] += delta
}

// SetBefdayPosition records the start-of-day baseline for one symbol.
func (e *Engine) SetBefdayPosition(symbol string, qty int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.befday[symbol] = qty
}

// SetBefdayPositions replaces the full start-of-day baseline. The current
// positions are seeded from the baseline as well.
func (e *Engine) SetBefdayPositions(positions map[string]int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.befday = make(map[string]int, len(positions))
	for sym, qty := range positions {
		e.befday[sym] = qty
		if _, ok := e.positions[sym]; !ok {
			e.positions[sym] = qty
		}
	}
}

func (e *Engine) pruneRecentLocked(now time.Time) {
	if e.cfg.DuplicateWindow <= 0 {
		e.recent = e.recent[:0]
		return
	}
	cutoff := now.Add(-e.cfg.DuplicateWindow)
	kept := e.recent[:0]
	for _, r := range e.recent {
		if !r.at.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	e.recent = kept
}

// maybeResetLocked clears the daily counters the first time a call lands past
// the reset boundary. There is no timer: the reset rides on whatever check or
// record call crosses the boundary first.
func (e *Engine) maybeResetLocked() {
	now := e.now().In(e.cfg.Location)
	boundary := e.resetBoundary(now)
	if e.lastReset.Before(boundary) {
		e.dailySymbolChange = make(map[string]int)
		e.dailyTotalChange = 0
		e.dailyOrderCount = 0
		e.recent = e.recent[:0]
		e.lastOrderAt = make(map[string]time.Time)
		e.lastReset = now
		e.log.Info("guardrail daily counters reset", "boundary", boundary)
	}
}

// resetBoundary returns the most recent reset instant at or before now.
func (e *Engine) resetBoundary(now time.Time) time.Time {
	hour, min := 0, 0
	if e.cfg.ResetTime != "" {
		fmt.Sscanf(e.cfg.ResetTime, "%d:%d", &hour, &min)
	}
	b := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, e.cfg.Location)
	if b.After(now) {
		b = b.AddDate(0, 0, -1)
	}
	return b
}

func pass(name string) Check {
	return Check{Passed: true, Name: name}
}

func fail(name, reason string, details map[string]any) Check {
	return Check{Passed: false, Name: name, Reason: reason, Details: details}
}

func signedQty(action string, qty int) int {
	if action == "SELL" {
		return -qty
	}
	return qty
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
