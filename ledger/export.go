package ledger

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"time"
)

// Report is the end-of-day view: the summary plus the underlying entries.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Summary     Summary   `json:"summary"`
	Entries     []Entry   `json:"entries"`
}

// GenerateEndOfDayReport builds the report for a date. Entries are sorted by
// symbol then classification for stable output.
func (d *Daily) GenerateEndOfDayReport(date string) Report {
	entries := d.Entries(date)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Symbol != entries[j].Symbol {
			return entries[i].Symbol < entries[j].Symbol
		}
		return entries[i].Classification < entries[j].Classification
	})
	return Report{
		GeneratedAt: d.now().UTC(),
		Summary:     d.GetDailySummary(date),
		Entries:     entries,
	}
}

// ExportJSON renders the end-of-day report as indented JSON.
func (d *Daily) ExportJSON(date string) ([]byte, error) {
	return json.MarshalIndent(d.GenerateEndOfDayReport(date), "", "  ")
}

// ExportCSV writes the date's entries to a CSV file with a header row.
func (d *Daily) ExportCSV(path, date string) error {
	return WriteCSV(path, d.GenerateEndOfDayReport(date).Entries)
}

// WriteCSV writes ledger entries to a CSV file with a header row.
func WriteCSV(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"date", "symbol", "classification", "filled_qty",
		"filled_notional", "realized_pnl", "count_fills", "net_qty_change",
	}); err != nil {
		return err
	}

	for _, e := range entries {
		if err := w.Write([]string{
			e.Date,
			e.Symbol,
			e.Classification,
			strconv.Itoa(e.FilledQty),
			fmtFloat(e.FilledNotional),
			fmtFloat(e.RealizedPnL),
			strconv.Itoa(e.CountFills),
			strconv.Itoa(e.NetQtyChange),
		}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
