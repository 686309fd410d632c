package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hampro/tradecore/ledger"
	"github.com/hampro/tradecore/report"
	"github.com/hampro/tradecore/store"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Query ledger data from the state store",
	Long: `Query the daily ledger and dual-ledger reports from the SQLite state
store written by the worker.

Subcommands:
  summary  - Daily summary by classification and symbol
  report   - Combined baseline + intraday report
  export   - Write the day's entries to CSV

Examples:
  tradecore ledger summary 2026-03-02
  tradecore ledger report 2026-03-02 --accounts HAMPRO,IBKR_GUN
  tradecore ledger export 2026-03-02 --out eod.csv`,
}

var ledgerSummaryCmd = &cobra.Command{
	Use:   "summary <YYYY-MM-DD>",
	Short: "Daily ledger summary for a date",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerSummary,
}

var ledgerReportCmd = &cobra.Command{
	Use:   "report <YYYY-MM-DD>",
	Short: "Combined baseline + intraday report for a date",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerReport,
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export <YYYY-MM-DD>",
	Short: "Export the day's ledger entries to CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerExport,
}

var (
	ledgerDBPath   string
	ledgerAccounts string
	ledgerOutPath  string
)

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerSummaryCmd)
	ledgerCmd.AddCommand(ledgerReportCmd)
	ledgerCmd.AddCommand(ledgerExportCmd)

	ledgerCmd.PersistentFlags().StringVarP(&ledgerDBPath, "db", "d", "./tradecore.sqlite", "path to SQLite state store")
	ledgerReportCmd.Flags().StringVar(&ledgerAccounts, "accounts", "", "comma-separated accounts for the baseline (required)")
	ledgerReportCmd.MarkFlagRequired("accounts")
	ledgerExportCmd.Flags().StringVarP(&ledgerOutPath, "out", "o", "", "output CSV path (required)")
	ledgerExportCmd.MarkFlagRequired("out")
}

func runLedgerSummary(cmd *cobra.Command, args []string) error {
	st, err := store.NewSQLite(ledgerDBPath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer st.Close()

	return printJSON(ledger.NewStoredSummary(st).GetDailySummary(args[0]))
}

func runLedgerReport(cmd *cobra.Command, args []string) error {
	st, err := store.NewSQLite(ledgerDBPath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer st.Close()

	accounts := strings.Split(ledgerAccounts, ",")
	for i := range accounts {
		accounts[i] = strings.TrimSpace(accounts[i])
	}

	dual := report.NewDualLedger(report.NewStoreLoader(st), ledger.NewStoredSummary(st), accounts)
	rep, err := dual.GenerateCombinedReport(args[0])
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func runLedgerExport(cmd *cobra.Command, args []string) error {
	st, err := store.NewSQLite(ledgerDBPath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer st.Close()

	entries, err := ledger.LoadEntries(st, args[0])
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Symbol != entries[j].Symbol {
			return entries[i].Symbol < entries[j].Symbol
		}
		return entries[i].Classification < entries[j].Classification
	})

	if err := ledger.WriteCSV(ledgerOutPath, entries); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	fmt.Printf("Wrote %d entries to %s\n", len(entries), ledgerOutPath)
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
