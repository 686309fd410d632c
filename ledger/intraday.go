// Package ledger turns fills into the daily trading ledger: matched-lot
// intraday realized P&L per (account, symbol, date), aggregated into
// (date, symbol, classification) entries with JSON/CSV export.
package ledger

import (
	"fmt"
	"sync"
)

// Position is the running intraday position for one (account, symbol, date):
// only lots opened today, at their average cost. Quantity carried in from the
// overnight baseline is deliberately absent, so unwinding it can never
// produce intraday realized P&L.
type Position struct {
	Account     string
	Symbol      string
	Date        string
	NetQty      int     // signed; intraday-opened lots still outstanding
	AvgCost     float64 // average cost of the open intraday lots
	RealizedPnL float64 // cumulative realized P&L for the day
}

// Tracker computes matched-lot realized P&L using the average-cost method:
// a closing fill realizes (fill price − average cost) on the closed quantity,
// and a fill that crosses through flat re-opens the remainder at the fill
// price.
type Tracker struct {
	mu        sync.Mutex
	positions map[string]*Position
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{positions: make(map[string]*Position)}
}

func posKey(account, symbol, date string) string {
	return fmt.Sprintf("%s:%s:%s", account, symbol, date)
}

// UpdatePosition applies a fill and returns the realized P&L it produced plus
// the updated position. Realized P&L is non-zero only for the portion of the
// fill that closes quantity opened earlier the same day.
func (t *Tracker) UpdatePosition(account, symbol string, fillQty int, fillPrice float64, action, date string) (float64, Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := posKey(account, symbol, date)
	pos, ok := t.positions[key]
	if !ok {
		pos = &Position{Account: account, Symbol: symbol, Date: date}
		t.positions[key] = pos
	}

	signed := fillQty
	if action == "SELL" {
		signed = -fillQty
	}

	old := pos.NetQty
	newNet := old + signed

	var realized float64
	switch {
	case old == 0 || sameSign(old, signed):
		// Opening or adding: blend into the average cost.
		total := abs(old) + abs(signed)
		if total > 0 {
			pos.AvgCost = (float64(abs(old))*pos.AvgCost + float64(abs(signed))*fillPrice) / float64(total)
		}
	case old > 0:
		// Selling against an intraday long.
		closeQty := min(-signed, old)
		realized = float64(closeQty) * (fillPrice - pos.AvgCost)
		if newNet < 0 {
			pos.AvgCost = fillPrice // flipped short at the fill price
		} else if newNet == 0 {
			pos.AvgCost = 0
		}
	default:
		// Buying against an intraday short.
		closeQty := min(signed, -old)
		realized = float64(closeQty) * (pos.AvgCost - fillPrice)
		if newNet > 0 {
			pos.AvgCost = fillPrice
		} else if newNet == 0 {
			pos.AvgCost = 0
		}
	}

	pos.NetQty = newNet
	pos.RealizedPnL += realized
	return realized, *pos
}

// GetPosition returns the tracked intraday position, if any.
func (t *Tracker) GetPosition(account, symbol, date string) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[posKey(account, symbol, date)]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// PruneBefore drops positions for dates lexicographically before the given
// ISO date. Called at the daily boundary.
func (t *Tracker) PruneBefore(date string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, pos := range t.positions {
		if pos.Date < date {
			delete(t.positions, key)
		}
	}
}

func sameSign(a, b int) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
