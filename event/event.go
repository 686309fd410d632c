// Package event defines the typed events exchanged over the bus: trading
// intents, order lifecycle updates, and gross-exposure readings. Decoding is
// strict — events missing required fields are rejected at the boundary rather
// than coerced downstream.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Topic names on the event bus.
const (
	TopicIntents  = "intents"
	TopicOrders   = "orders"
	TopicExposure = "exposure"
)

// Order actions (direction of the trade).
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Lifecycle status strings carried in OrderEvent.Action.
const (
	StatusAccepted    = "ACCEPTED"
	StatusWorking     = "WORKING"
	StatusPartialFill = "PARTIAL_FILL"
	StatusFilled      = "FILLED"
	StatusCanceled    = "CANCELED"
)

var (
	ErrMissingEventID        = errors.New("intent missing event_id")
	ErrMissingSymbol         = errors.New("intent missing symbol")
	ErrMissingClassification = errors.New("intent missing classification")
	ErrInvalidAction         = errors.New("intent action must be BUY or SELL")
	ErrInvalidQuantity       = errors.New("intent quantity must be positive")
)

// Intent is a trading intent produced by an upstream decision engine. The
// classification quadruple (Classification, Bucket, Effect, Dir) is mandatory
// and is propagated unchanged onto every order event derived from the intent.
type Intent struct {
	EventID           string         `json:"event_id"`
	IntentType        string         `json:"intent_type"`
	Symbol            string         `json:"symbol"`
	Action            string         `json:"action"`
	Quantity          int            `json:"quantity"`
	Reason            string         `json:"reason"`
	LimitPrice        *float64       `json:"limit_price,omitempty"`
	Classification    string         `json:"classification"`
	Bucket            string         `json:"bucket"`
	Effect            string         `json:"effect"`
	Dir               string         `json:"dir"`
	RiskDeltaNotional float64        `json:"risk_delta_notional"`
	RiskDeltaGrossPct float64        `json:"risk_delta_gross_pct"`
	PositionContext   map[string]any `json:"position_context_at_intent"`
}

// AccountID extracts account_id from the position context, or "".
func (i Intent) AccountID() string {
	if i.PositionContext == nil {
		return ""
	}
	if v, ok := i.PositionContext["account_id"].(string); ok {
		return v
	}
	return ""
}

// Validate checks the fields an intent must always carry. A missing
// classification is a hard error by design: unclassified intents cannot be
// attributed in the ledger and must never become orders.
func (i Intent) Validate() error {
	if i.EventID == "" {
		return ErrMissingEventID
	}
	if i.Symbol == "" {
		return ErrMissingSymbol
	}
	if i.Classification == "" {
		return ErrMissingClassification
	}
	if i.Action != ActionBuy && i.Action != ActionSell {
		return fmt.Errorf("%w: %q", ErrInvalidAction, i.Action)
	}
	if i.Quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, i.Quantity)
	}
	return nil
}

// DecodeIntent parses and validates an intent payload.
func DecodeIntent(data []byte) (Intent, error) {
	var in Intent
	if err := json.Unmarshal(data, &in); err != nil {
		return Intent{}, fmt.Errorf("decode intent: %w", err)
	}
	if err := in.Validate(); err != nil {
		return Intent{}, err
	}
	return in, nil
}

// OrderEvent is published on the orders topic for every lifecycle transition.
// Action carries the lifecycle status (ACCEPTED/WORKING/PARTIAL_FILL/FILLED/
// CANCELED); OrderAction carries the trade direction.
type OrderEvent struct {
	OrderID           string         `json:"order_id"`
	Symbol            string         `json:"symbol"`
	Action            string         `json:"action"`
	Quantity          int            `json:"quantity"`
	OrderType         string         `json:"order_type"`
	Classification    string         `json:"classification"`
	Bucket            string         `json:"bucket"`
	Effect            string         `json:"effect"`
	Dir               string         `json:"dir"`
	RiskDeltaNotional float64        `json:"risk_delta_notional"`
	RiskDeltaGrossPct float64        `json:"risk_delta_gross_pct"`
	PositionContext   map[string]any `json:"position_context_at_intent,omitempty"`
	LimitPrice        *float64       `json:"limit_price,omitempty"`
	FilledQuantity    int            `json:"filled_quantity,omitempty"`
	AvgFillPrice      float64        `json:"avg_fill_price,omitempty"`
	Status            string         `json:"status"`
	IntentID          string         `json:"intent_id"`
	OrderAction       string         `json:"order_action"`
	AccountID         string         `json:"account_id"`
}

// DecodeOrderEvent parses an order event payload.
func DecodeOrderEvent(data []byte) (OrderEvent, error) {
	var ev OrderEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return OrderEvent{}, fmt.Errorf("decode order event: %w", err)
	}
	if ev.OrderID == "" {
		return OrderEvent{}, errors.New("order event missing order_id")
	}
	return ev, nil
}

// ExposureEvent reports current gross exposure as a percentage of capital.
type ExposureEvent struct {
	GrossExposurePct float64 `json:"gross_exposure_pct"`
}

// DecodeExposure parses an exposure payload.
func DecodeExposure(data []byte) (ExposureEvent, error) {
	var ev ExposureEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ExposureEvent{}, fmt.Errorf("decode exposure event: %w", err)
	}
	return ev, nil
}

// Encode marshals any event payload for publishing.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}
