package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hampro/tradecore/report"
	"github.com/hampro/tradecore/store"
)

var befdayCmd = &cobra.Command{
	Use:   "befday",
	Short: "Manage overnight baseline snapshots",
}

var befdayImportCmd = &cobra.Command{
	Use:   "import <snapshot.json>",
	Short: "Import an overnight baseline snapshot into the state store",
	Long: `Import an overnight baseline snapshot produced by the upstream position
system. The file must contain a JSON document with account_id, date, and
entries [{symbol, befday_qty, befday_cost, notional}].

Example:
  tradecore befday import hampro-2026-03-02.json`,
	Args: cobra.ExactArgs(1),
	RunE: runBefdayImport,
}

var befdayDBPath string

func init() {
	rootCmd.AddCommand(befdayCmd)
	befdayCmd.AddCommand(befdayImportCmd)

	befdayCmd.PersistentFlags().StringVarP(&befdayDBPath, "db", "d", "./tradecore.sqlite", "path to SQLite state store")
}

func runBefdayImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read snapshot file: %w", err)
	}

	var snap report.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	if snap.AccountID == "" || snap.Date == "" {
		return fmt.Errorf("snapshot must carry account_id and date")
	}

	st, err := store.NewSQLite(befdayDBPath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer st.Close()

	if err := report.NewStoreLoader(st).Save(snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	fmt.Printf("Imported %d entries for %s on %s\n", len(snap.Entries), snap.AccountID, snap.Date)
	return nil
}
