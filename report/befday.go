// Package report merges the overnight baseline (Ledger A) with the intraday
// ledger (Ledger B) into the combined end-of-day view.
package report

import (
	"fmt"

	"github.com/hampro/tradecore/store"
)

// BaselineEntry is one symbol's start-of-day position from the overnight
// snapshot. Read-only to this core; produced externally once per account per
// day.
type BaselineEntry struct {
	Symbol     string  `json:"symbol"`
	BefdayQty  int     `json:"befday_qty"`
	BefdayCost float64 `json:"befday_cost"`
	Notional   float64 `json:"notional"`
}

// Snapshot is the full overnight baseline for one account and date.
type Snapshot struct {
	AccountID string          `json:"account_id"`
	Date      string          `json:"date"`
	Entries   []BaselineEntry `json:"entries"`
}

// Loader fetches befday snapshots.
type Loader interface {
	Load(accountID, date string) (Snapshot, error)
}

// StoreLoader reads snapshots written into the state store by the overnight
// process under befday:<account>:<date>.
type StoreLoader struct {
	st store.Store
}

// NewStoreLoader wraps a state store as a snapshot loader.
func NewStoreLoader(st store.Store) *StoreLoader {
	return &StoreLoader{st: st}
}

func befdayKey(accountID, date string) string {
	return fmt.Sprintf("befday:%s:%s", accountID, date)
}

// Load returns the snapshot for the account and date. A missing snapshot is
// not an error: it yields an empty snapshot (no overnight positions).
func (l *StoreLoader) Load(accountID, date string) (Snapshot, error) {
	doc, err := l.st.Get(befdayKey(accountID, date))
	if err != nil {
		return Snapshot{}, fmt.Errorf("load befday snapshot: %w", err)
	}
	snap := Snapshot{AccountID: accountID, Date: date}
	if doc == nil {
		return snap, nil
	}

	raw, ok := doc["entries"].([]any)
	if !ok {
		return snap, nil
	}
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		e := BaselineEntry{}
		if v, ok := m["symbol"].(string); ok {
			e.Symbol = v
		}
		if v, ok := m["befday_qty"].(float64); ok {
			e.BefdayQty = int(v)
		}
		if v, ok := m["befday_cost"].(float64); ok {
			e.BefdayCost = v
		}
		if v, ok := m["notional"].(float64); ok {
			e.Notional = v
		}
		if e.Symbol != "" {
			snap.Entries = append(snap.Entries, e)
		}
	}
	return snap, nil
}

// Save writes a snapshot into the state store. Used by tests and by the
// overnight import tooling.
func (l *StoreLoader) Save(snap Snapshot) error {
	entries := make([]any, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		entries = append(entries, map[string]any{
			"symbol":      e.Symbol,
			"befday_qty":  float64(e.BefdayQty),
			"befday_cost": e.BefdayCost,
			"notional":    e.Notional,
		})
	}
	return l.st.Set(befdayKey(snap.AccountID, snap.Date), map[string]any{
		"account_id": snap.AccountID,
		"date":       snap.Date,
		"entries":    entries,
	})
}

var _ Loader = (*StoreLoader)(nil)
