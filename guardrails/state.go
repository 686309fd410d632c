package guardrails

import (
	"fmt"
	"time"

	"github.com/hampro/tradecore/store"
)

// DayState is the durable snapshot of the daily counters, persisted through
// the state store so a restart inside the trading day does not hand the
// engine fresh limits.
type DayState struct {
	Day              string         `json:"day"`
	DailySymbol      map[string]int `json:"daily_symbol_change"`
	DailyTotalChange int            `json:"daily_total_change"`
	DailyOrderCount  int            `json:"daily_order_count"`
}

const dayStateKey = "guardrails:day"

// Snapshot captures the current daily counters.
func (e *Engine) Snapshot() DayState {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.maybeResetLocked()

	sym := make(map[string]int, len(e.dailySymbolChange))
	for k, v := range e.dailySymbolChange {
		sym[k] = v
	}
	return DayState{
		Day:              e.dayLocked(),
		DailySymbol:      sym,
		DailyTotalChange: e.dailyTotalChange,
		DailyOrderCount:  e.dailyOrderCount,
	}
}

// Restore loads counters from a snapshot taken earlier the same trading day.
// Snapshots from a previous day are ignored.
func (e *Engine) Restore(s DayState) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.maybeResetLocked()
	if s.Day != e.dayLocked() {
		return false
	}

	e.dailySymbolChange = make(map[string]int, len(s.DailySymbol))
	for k, v := range s.DailySymbol {
		e.dailySymbolChange[k] = v
	}
	e.dailyTotalChange = s.DailyTotalChange
	e.dailyOrderCount = s.DailyOrderCount
	return true
}

// dayLocked identifies the current trading day by its reset boundary date.
func (e *Engine) dayLocked() string {
	now := e.now().In(e.cfg.Location)
	return e.resetBoundary(now).Format("2006-01-02")
}

// SaveTo persists the day state. Best-effort: callers typically invoke it
// periodically and at shutdown.
func (e *Engine) SaveTo(st store.Store) error {
	s := e.Snapshot()
	sym := make(map[string]any, len(s.DailySymbol))
	for k, v := range s.DailySymbol {
		sym[k] = v
	}
	return st.Set(dayStateKey, map[string]any{
		"day":                 s.Day,
		"daily_symbol_change": sym,
		"daily_total_change":  s.DailyTotalChange,
		"daily_order_count":   s.DailyOrderCount,
	})
}

// LoadFrom restores the day state saved by SaveTo, if it belongs to the
// current trading day.
func (e *Engine) LoadFrom(st store.Store) (bool, error) {
	doc, err := st.Get(dayStateKey)
	if err != nil {
		return false, fmt.Errorf("load guardrail day state: %w", err)
	}
	if doc == nil {
		return false, nil
	}

	s := DayState{DailySymbol: make(map[string]int)}
	if v, ok := doc["day"].(string); ok {
		s.Day = v
	}
	if v, ok := doc["daily_total_change"].(float64); ok {
		s.DailyTotalChange = int(v)
	}
	if v, ok := doc["daily_order_count"].(float64); ok {
		s.DailyOrderCount = int(v)
	}
	if m, ok := doc["daily_symbol_change"].(map[string]any); ok {
		for k, raw := range m {
			if f, ok := raw.(float64); ok {
				s.DailySymbol[k] = int(f)
			}
		}
	}
	return e.Restore(s), nil
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.now = now
	e.lastReset = now()
}
