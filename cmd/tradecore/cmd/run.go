package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hampro/tradecore/bus"
	"github.com/hampro/tradecore/config"
	"github.com/hampro/tradecore/execution"
	"github.com/hampro/tradecore/guardrails"
	"github.com/hampro/tradecore/ledger"
	"github.com/hampro/tradecore/orders"
	"github.com/hampro/tradecore/pkg/logx"
	"github.com/hampro/tradecore/report"
	"github.com/hampro/tradecore/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the execution worker",
	Long: `Run the long-lived execution worker: consume intents and exposure events
from the bus, gate them through guardrails and liquidity sizing, manage the
order lifecycle, and feed the daily ledger.

The worker stops cleanly on SIGINT/SIGTERM.

Example:
  tradecore run -f configs/worker.yaml`,
	RunE: runWorker,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Local overrides, e.g. TRADECORE_* vars for deployment tweaks.
	_ = godotenv.Load()

	cfg := config.Default()
	if runConfigPath != "" {
		var err error
		cfg, err = config.LoadFromFile(runConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	log := logx.New(cfg.Service.LogLevel)
	slog.SetDefault(log)

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	b := bus.NewMemoryBus(cfg.BusClaimTimeout())
	defer b.Close()

	gcfg, err := cfg.GuardrailsEngine()
	if err != nil {
		return err
	}
	guard := guardrails.NewEngine(gcfg, log)
	if restored, err := guard.LoadFrom(st); err != nil {
		log.Warn("guardrail day state not restored", "error", err)
	} else if restored {
		log.Info("guardrail day state restored from store")
	}

	loader := report.NewStoreLoader(st)
	if err := seedBaselines(guard, loader, cfg.Service.Accounts); err != nil {
		log.Warn("befday baseline not loaded", "error", err)
	}

	prices := execution.NewPriceBook()

	ctrl := orders.NewController(cfg.OrderController(), log)
	ctrl.SetPriceFunc(prices.Get)
	ctrl.SetCancelFunc(func(provider, orderID string) error {
		// Dry-run venue: nothing upstream to cancel against.
		log.Info("venue cancel requested", "provider", provider, "order_id", orderID)
		return nil
	})
	ctrl.SetTerminalHook(func(o orders.Order) {
		guard.RecordOrderComplete(o.Symbol)
		key := fmt.Sprintf("orders:%s:%s", o.Provider, o.ID)
		if err := st.Set(key, orderDoc(o)); err != nil {
			log.Warn("order snapshot persist failed", "key", key, "error", err)
		}
	})
	ctrl.SetHoldHook(func(h orders.HeldFill) {
		key := fmt.Sprintf("hold:%s:%s", h.Provider, h.OrderID)
		if err := st.Set(key, heldDoc(h)); err != nil {
			log.Warn("held fill persist failed", "key", key, "error", err)
		}
	})

	daily := ledger.NewDaily(ledger.NewTracker(), log)
	daily.SetStore(st)
	consumer := ledger.NewConsumer(b, daily, "ledger", "ledger-1", time.Second, log)

	svc := execution.NewService(cfg.ExecutionService(), b, guard, cfg.LiquidityGuard(),
		ctrl, execution.NewSimulator(prices), log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl.Start(ctx)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("ledger consumer stopped", "error", err)
		}
	}()
	go persistDayState(ctx, guard, st, log)

	log.Info("worker started",
		"provider", cfg.Service.Provider, "accounts", cfg.Service.Accounts,
		"simulate_fills", cfg.Execution.SimulateFills)

	err = svc.Run(ctx)

	ctrl.Stop()
	if serr := guard.SaveTo(st); serr != nil {
		log.Warn("guardrail day state not saved", "error", serr)
	}
	log.Info("worker stopped")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(cfg *config.Config) (store.Store, func(), error) {
	if cfg.Store.Type == "sqlite" {
		s, err := store.NewSQLite(cfg.Store.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open state store: %w", err)
		}
		return s, func() { s.Close() }, nil
	}
	return store.NewMemoryStore(), func() {}, nil
}

// seedBaselines loads today's befday snapshots and hands the net positions to
// the guardrail engine.
func seedBaselines(guard *guardrails.Engine, loader *report.StoreLoader, accounts []string) error {
	date := time.Now().UTC().Format("2006-01-02")
	positions := make(map[string]int)
	for _, account := range accounts {
		snap, err := loader.Load(account, date)
		if err != nil {
			return err
		}
		for _, e := range snap.Entries {
			positions[e.Symbol] += e.BefdayQty
		}
	}
	if len(positions) > 0 {
		guard.SetBefdayPositions(positions)
	}
	return nil
}

func persistDayState(ctx context.Context, guard *guardrails.Engine, st store.Store, log *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := guard.SaveTo(st); err != nil {
				log.Warn("guardrail day state not saved", "error", err)
			}
		}
	}
}

func orderDoc(o orders.Order) map[string]any {
	return map[string]any{
		"id":             o.ID,
		"intent_id":      o.IntentID,
		"symbol":         o.Symbol,
		"action":         o.Action,
		"lot_qty":        o.LotQty,
		"filled_qty":     o.FilledQty,
		"price":          o.Price,
		"status":         string(o.Status),
		"provider":       o.Provider,
		"book":           o.Book,
		"classification": o.Classification,
		"replace_count":  o.ReplaceCount,
		"correlation_id": o.CorrelationID,
		"created_at":     o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func heldDoc(h orders.HeldFill) map[string]any {
	return map[string]any{
		"provider":    h.Provider,
		"order_id":    h.OrderID,
		"filled_qty":  h.FilledQty,
		"price":       h.Price,
		"policy":      h.Policy,
		"received_at": h.ReceivedAt.UTC().Format(time.RFC3339),
	}
}
