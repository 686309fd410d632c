package execution

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hampro/tradecore/bus"
	"github.com/hampro/tradecore/event"
	"github.com/hampro/tradecore/guardrails"
	"github.com/hampro/tradecore/orders"
)

// Config tunes the execution service poll loop.
type Config struct {
	// Provider is the broker/account partition new orders are registered
	// under.
	Provider string
	Book     string

	Group    string
	Consumer string

	ReadCount int
	ReadBlock time.Duration

	// HardCapGrossPct is the gross-exposure threshold that triggers
	// cancellation of risk-increasing orders. Defaults to 130.0.
	HardCapGrossPct float64

	// SimulateFills enables the deterministic fill simulator. Off, orders
	// stay WORKING until an external fill arrives.
	SimulateFills bool
}

// Service is the intent-consuming worker. One instance, one goroutine: Run
// round-robins a blocking read of the intents stream with a non-blocking
// drain of the exposure stream.
type Service struct {
	cfg   Config
	bus   bus.Bus
	guard *guardrails.Engine
	liq   Guard
	ctrl  *orders.Controller
	sim   *Simulator
	log   *slog.Logger
}

// NewService wires the execution service. A nil liquidity guard skips sizing;
// a nil logger falls back to slog.Default().
func NewService(cfg Config, b bus.Bus, guard *guardrails.Engine, liq Guard, ctrl *orders.Controller, sim *Simulator, log *slog.Logger) *Service {
	if cfg.Group == "" {
		cfg.Group = "execution"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 16
	}
	if cfg.ReadBlock <= 0 {
		cfg.ReadBlock = time.Second
	}
	if cfg.HardCapGrossPct <= 0 {
		cfg.HardCapGrossPct = 130.0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, bus: b, guard: guard, liq: liq, ctrl: ctrl, sim: sim, log: log}
}

// Run polls until the context is cancelled. Intents are processed strictly
// sequentially; a processed intent is acked unless it was deferred, so
// deferred intents come back via pending-entry redelivery.
func (s *Service) Run(ctx context.Context) error {
	if err := s.bus.CreateConsumerGroup(event.TopicIntents, s.cfg.Group); err != nil {
		return err
	}
	if err := s.bus.CreateConsumerGroup(event.TopicExposure, s.cfg.Group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := s.bus.Read(event.TopicIntents, s.cfg.Group, s.cfg.Consumer, s.cfg.ReadCount, s.cfg.ReadBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("intent read failed", "error", err)
			time.Sleep(250 * time.Millisecond)
		}
		for _, m := range msgs {
			if s.ProcessIntent(m.Data) {
				if err := s.bus.Ack(event.TopicIntents, s.cfg.Group, m.ID); err != nil {
					s.log.Warn("intent ack failed", "message_id", m.ID, "error", err)
				}
			}
		}

		s.drainExposure()
	}
}

// ProcessIntent runs one intent through the full gate sequence. The return
// value is the ack decision: true consumes the message, false leaves it
// pending for redelivery (deferral).
func (s *Service) ProcessIntent(data []byte) bool {
	in, err := event.DecodeIntent(data)
	if err != nil {
		s.log.Error("invalid intent dropped", "error", err)
		return true
	}

	if existing, ok := s.ctrl.LookupIntent(in.EventID); ok {
		s.log.Debug("duplicate intent skipped", "intent_id", in.EventID, "order_id", existing.ID)
		return true
	}

	var limit float64
	if in.LimitPrice != nil {
		limit = *in.LimitPrice
	}

	passed, checks := s.guard.CheckAll(guardrails.OrderRequest{
		Symbol: in.Symbol,
		Action: in.Action,
		LotQty: in.Quantity,
		Price:  limit,
		Maxalw: ctxFloat(in.PositionContext, "maxalw"),
		Sector: ctxString(in.PositionContext, "sector"),
	})
	if !passed {
		s.log.Info("intent rejected by guardrails",
			"intent_id", in.EventID, "symbol", in.Symbol, "reason", firstFailure(checks))
		return true
	}

	qty := in.Quantity
	if s.liq != nil {
		dec := s.liq.Validate(SizeRequest{
			Symbol:         in.Symbol,
			Classification: in.Classification,
			DesiredQty:     in.Quantity,
			AvgADV:         ctxFloat(in.PositionContext, "avg_adv"),
			Bucket:         in.Bucket,
			MinutesToClose: int(ctxFloat(in.PositionContext, "minutes_to_close")),
			IntentType:     in.IntentType,
		})
		if !dec.Valid {
			s.log.Info("intent deferred by liquidity guard",
				"intent_id", in.EventID, "symbol", in.Symbol, "reason", dec.Reason)
			return false
		}
		if dec.Qty < qty {
			s.log.Info("intent quantity reduced",
				"intent_id", in.EventID, "symbol", in.Symbol, "reason", dec.Reason)
			qty = dec.Qty
		}
	}

	o, created := s.ctrl.RegisterIfAbsent(orders.Order{
		IntentID:       in.EventID,
		Symbol:         in.Symbol,
		Action:         in.Action,
		LotQty:         qty,
		Price:          limit,
		Provider:       s.cfg.Provider,
		Book:           s.cfg.Book,
		Classification: in.Classification,
	})
	if !created {
		s.log.Debug("intent lost register race", "intent_id", in.EventID, "order_id", o.ID)
		return true
	}
	s.guard.RecordOrder(in.Symbol, in.Action, qty)

	s.publishOrderEvent(s.orderEvent(o, in, event.StatusAccepted))
	if sent, err := s.ctrl.MarkSent(o.Provider, o.ID); err == nil {
		o = sent
	}
	s.publishOrderEvent(s.orderEvent(o, in, event.StatusWorking))

	if s.cfg.SimulateFills && s.sim != nil {
		s.simulateFill(o, in)
	}
	return true
}

func (s *Service) simulateFill(o orders.Order, in event.Intent) {
	fill, ok := s.sim.Simulate(o, in.IntentType)
	if !ok {
		return
	}

	filled, err := s.ctrl.ApplyFill(o.Provider, o.ID, fill.Qty, fill.Price)
	if err != nil {
		s.log.Warn("simulated fill not applied", "order_id", o.ID, "error", err)
		return
	}

	delta := fill.Qty
	if filled.Action == event.ActionSell {
		delta = -delta
	}
	s.guard.UpdatePosition(filled.Symbol, delta)

	status := event.StatusPartialFill
	if filled.Status == orders.StatusFilled {
		status = event.StatusFilled
	}
	ev := s.orderEvent(filled, in, status)
	ev.FilledQuantity = fill.Qty
	ev.AvgFillPrice = fill.Price
	s.publishOrderEvent(ev)
}

// drainExposure reads whatever exposure events are immediately available and
// applies the hard cap on the latest reading.
func (s *Service) drainExposure() {
	msgs, err := s.bus.Read(event.TopicExposure, s.cfg.Group, s.cfg.Consumer, s.cfg.ReadCount, 0)
	if err != nil || len(msgs) == 0 {
		return
	}

	var latest *event.ExposureEvent
	for _, m := range msgs {
		ev, err := event.DecodeExposure(m.Data)
		if err != nil {
			s.log.Error("undecodable exposure event dropped", "message_id", m.ID, "error", err)
		} else {
			latest = &ev
		}
		if err := s.bus.Ack(event.TopicExposure, s.cfg.Group, m.ID); err != nil {
			s.log.Warn("exposure ack failed", "message_id", m.ID, "error", err)
		}
	}
	if latest != nil && latest.GrossExposurePct >= s.cfg.HardCapGrossPct {
		s.applyHardCap(latest.GrossExposurePct)
	}
}

// applyHardCap cancels every open risk-increasing order. Risk-decreasing
// orders keep working: the breaker is targeted, not a full halt.
func (s *Service) applyHardCap(grossPct float64) {
	s.log.Warn("hard cap breached, cancelling risk-increasing orders",
		"gross_exposure_pct", grossPct, "threshold", s.cfg.HardCapGrossPct)

	cancelled := s.ctrl.CancelWhere(func(o orders.Order) bool {
		return strings.HasSuffix(o.Classification, "_INCREASE")
	}, "hard cap")

	for _, o := range cancelled {
		s.publishOrderEvent(event.OrderEvent{
			OrderID:        o.ID,
			Symbol:         o.Symbol,
			Action:         event.StatusCanceled,
			Quantity:       o.LotQty,
			Classification: o.Classification,
			FilledQuantity: o.FilledQty,
			Status:         event.StatusCanceled,
			IntentID:       o.IntentID,
			OrderAction:    o.Action,
			AccountID:      o.Provider,
		})
	}
}

// orderEvent builds a lifecycle event, preserving the classification
// quadruple and risk deltas from the originating intent.
func (s *Service) orderEvent(o orders.Order, in event.Intent, status string) event.OrderEvent {
	orderType := "MARKET"
	if in.LimitPrice != nil {
		orderType = "LIMIT"
	}
	return event.OrderEvent{
		OrderID:           o.ID,
		Symbol:            o.Symbol,
		Action:            status,
		Quantity:          o.LotQty,
		OrderType:         orderType,
		Classification:    in.Classification,
		Bucket:            in.Bucket,
		Effect:            in.Effect,
		Dir:               in.Dir,
		RiskDeltaNotional: in.RiskDeltaNotional,
		RiskDeltaGrossPct: in.RiskDeltaGrossPct,
		PositionContext:   in.PositionContext,
		LimitPrice:        in.LimitPrice,
		Status:            status,
		IntentID:          o.IntentID,
		OrderAction:       o.Action,
		AccountID:         in.AccountID(),
	}
}

func (s *Service) publishOrderEvent(ev event.OrderEvent) {
	data, err := event.Encode(ev)
	if err != nil {
		s.log.Error("order event encode failed", "order_id", ev.OrderID, "error", err)
		return
	}
	if _, err := s.bus.Publish(event.TopicOrders, data); err != nil {
		s.log.Warn("order event publish failed", "order_id", ev.OrderID, "error", err)
	}
}

func firstFailure(checks []guardrails.Check) string {
	for _, c := range checks {
		if !c.Passed {
			return c.Name + ": " + c.Reason
		}
	}
	return ""
}

func ctxFloat(m map[string]any, key string) float64 {
	if m == nil {
		return 0
	}
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func ctxString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
