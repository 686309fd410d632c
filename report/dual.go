package report

import (
	"fmt"
	"sort"

	"github.com/hampro/tradecore/ledger"
)

// BaselineTotals is the per-symbol aggregation of the overnight snapshot.
type BaselineTotals struct {
	Qty      int     `json:"qty"`
	Cost     float64 `json:"cost"`
	Notional float64 `json:"notional"`
}

// BaselineReport is Ledger A: the overnight baseline aggregated by symbol
// with long/short notional totals.
type BaselineReport struct {
	Date          string                    `json:"date"`
	BySymbol      map[string]BaselineTotals `json:"by_symbol"`
	LongNotional  float64                   `json:"long_notional"`
	ShortNotional float64                   `json:"short_notional"`
}

// CombinedRow pairs one symbol's baseline with its intraday activity.
type CombinedRow struct {
	Symbol               string  `json:"symbol"`
	BefdayQty            int     `json:"befday_qty"`
	BefdayCost           float64 `json:"befday_cost"`
	BefdayNotional       float64 `json:"befday_notional"`
	IntradayNetQtyChange int     `json:"intraday_net_qty_change"`
	IntradayNotional     float64 `json:"intraday_notional"`
	IntradayRealizedPnL  float64 `json:"intraday_realized_pnl"`
	EndQty               int     `json:"end_qty"`
}

// CombinedReport is the merged end-of-day view. Baseline notional is
// reported as recorded at snapshot time; the baseline leg is not marked to
// market.
type CombinedReport struct {
	Date                string        `json:"date"`
	Rows                []CombinedRow `json:"rows"`
	TotalRealizedPnL    float64       `json:"total_realized_pnl"`
	TotalBefdayNotional float64       `json:"total_befday_notional"`
}

// IntradaySource serves the daily ledger summary. Satisfied by ledger.Daily
// in the worker and by ledger.StoredSummary in reporting tools.
type IntradaySource interface {
	GetDailySummary(date string) ledger.Summary
}

// DualLedger produces the baseline, intraday, and combined reports.
type DualLedger struct {
	loader   Loader
	daily    IntradaySource
	accounts []string
}

// NewDualLedger wires the report over the snapshot loader and the daily
// ledger, covering the given accounts.
func NewDualLedger(loader Loader, daily IntradaySource, accounts []string) *DualLedger {
	return &DualLedger{loader: loader, daily: daily, accounts: accounts}
}

// GetBaselineReport aggregates the overnight snapshots of all accounts by
// symbol (Ledger A).
func (r *DualLedger) GetBaselineReport(date string) (BaselineReport, error) {
	rep := BaselineReport{Date: date, BySymbol: make(map[string]BaselineTotals)}
	for _, account := range r.accounts {
		snap, err := r.loader.Load(account, date)
		if err != nil {
			return BaselineReport{}, fmt.Errorf("baseline for %s: %w", account, err)
		}
		for _, e := range snap.Entries {
			t := rep.BySymbol[e.Symbol]
			t.Qty += e.BefdayQty
			t.Cost += e.BefdayCost
			t.Notional += e.Notional
			rep.BySymbol[e.Symbol] = t

			if e.BefdayQty >= 0 {
				rep.LongNotional += e.Notional
			} else {
				rep.ShortNotional += e.Notional
			}
		}
	}
	return rep, nil
}

// GetIntradayReport returns Ledger B: the daily ledger summary.
func (r *DualLedger) GetIntradayReport(date string) ledger.Summary {
	return r.daily.GetDailySummary(date)
}

// GenerateCombinedReport merges both ledgers: every symbol appearing in
// either gets a row with end_qty = befday_qty + intraday net change.
func (r *DualLedger) GenerateCombinedReport(date string) (CombinedReport, error) {
	baseline, err := r.GetBaselineReport(date)
	if err != nil {
		return CombinedReport{}, err
	}
	intraday := r.GetIntradayReport(date)

	symbols := make(map[string]struct{})
	for sym := range baseline.BySymbol {
		symbols[sym] = struct{}{}
	}
	for sym := range intraday.BySymbol {
		symbols[sym] = struct{}{}
	}

	rep := CombinedReport{Date: date}
	for sym := range symbols {
		b := baseline.BySymbol[sym]
		i := intraday.BySymbol[sym]
		row := CombinedRow{
			Symbol:               sym,
			BefdayQty:            b.Qty,
			BefdayCost:           b.Cost,
			BefdayNotional:       b.Notional,
			IntradayNetQtyChange: i.NetQtyChange,
			IntradayNotional:     i.FilledNotional,
			IntradayRealizedPnL:  i.RealizedPnL,
			EndQty:               b.Qty + i.NetQtyChange,
		}
		rep.Rows = append(rep.Rows, row)
		rep.TotalRealizedPnL += row.IntradayRealizedPnL
		rep.TotalBefdayNotional += row.BefdayNotional
	}

	sort.Slice(rep.Rows, func(a, b int) bool { return rep.Rows[a].Symbol < rep.Rows[b].Symbol })
	return rep, nil
}
