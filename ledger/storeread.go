package ledger

import (
	"strings"

	"github.com/hampro/tradecore/store"
)

// LoadEntries reads the mirrored ledger entries for a date back out of the
// state store. Reporting tools use this to query the ledger without the
// worker process.
func LoadEntries(st store.Store, date string) ([]Entry, error) {
	keys, err := st.Keys("ledger:" + date + ":")
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, key := range keys {
		doc, err := st.Get(key)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		e := Entry{Date: date}
		if v, ok := doc["symbol"].(string); ok {
			e.Symbol = v
		}
		if v, ok := doc["classification"].(string); ok {
			e.Classification = v
		}
		e.FilledQty = docInt(doc, "filled_qty")
		e.CountFills = docInt(doc, "count_fills")
		e.NetQtyChange = docInt(doc, "net_qty_change")
		e.FilledNotional = docFloat(doc, "filled_notional")
		e.RealizedPnL = docFloat(doc, "realized_pnl")
		if e.Symbol == "" {
			// Key layout is ledger:<date>:<symbol>:<classification>.
			parts := strings.Split(key, ":")
			if len(parts) == 4 {
				e.Symbol, e.Classification = parts[2], parts[3]
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// Summarize aggregates entries by classification and symbol with grand
// totals.
func Summarize(date string, entries []Entry) Summary {
	s := Summary{
		Date:             date,
		ByClassification: make(map[string]Totals),
		BySymbol:         make(map[string]Totals),
	}
	for i := range entries {
		e := &entries[i]
		if e.Date != date {
			continue
		}
		cls := s.ByClassification[e.Classification]
		cls.add(e)
		s.ByClassification[e.Classification] = cls

		sym := s.BySymbol[e.Symbol]
		sym.add(e)
		s.BySymbol[e.Symbol] = sym

		s.Totals.add(e)
	}
	return s
}

// StoredSummary is a Summary source backed by store-mirrored entries,
// satisfying the same read contract as Daily.
type StoredSummary struct {
	st store.Store
}

func NewStoredSummary(st store.Store) *StoredSummary {
	return &StoredSummary{st: st}
}

// GetDailySummary aggregates the mirrored entries for a date. Store errors
// yield an empty summary.
func (r *StoredSummary) GetDailySummary(date string) Summary {
	entries, err := LoadEntries(r.st, date)
	if err != nil {
		return Summarize(date, nil)
	}
	return Summarize(date, entries)
}

func docInt(doc map[string]any, key string) int {
	switch v := doc[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func docFloat(doc map[string]any, key string) float64 {
	switch v := doc[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
