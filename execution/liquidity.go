// Package execution consumes trading intents and exposure events from the
// bus, gates them through guardrails and liquidity sizing, and drives the
// order controller. It runs as a single-goroutine poll loop: intents are
// processed strictly sequentially, which is what makes the idempotency check
// safe without extra locking inside the service.
package execution

import "fmt"

// SizeRequest is the context handed to the liquidity guard for one intent.
type SizeRequest struct {
	Symbol         string
	Classification string
	DesiredQty     int
	AvgADV         float64
	Bucket         string
	MinutesToClose int
	IntentType     string
}

// SizeDecision is the guard's verdict. Valid false defers the intent: no
// order is created and the intent is re-evaluated on redelivery. A Qty below
// the desired quantity is a reduction and is used as-is.
type SizeDecision struct {
	Valid  bool
	Qty    int
	Reason string
}

// Guard sizes order quantities against available liquidity.
type Guard interface {
	Validate(req SizeRequest) SizeDecision
}

// ADVGuard caps order quantity at a fraction of the symbol's average daily
// volume. Near the close the cap tightens to half. Unknown ADV defers.
type ADVGuard struct {
	// MaxADVFraction is the share of ADV one order may consume. Defaults to
	// 0.05 when unset.
	MaxADVFraction float64

	// CloseWindowMinutes tightens the cap inside the final minutes of the
	// session. Zero disables the tightening.
	CloseWindowMinutes int

	// ADV resolves average daily volume when the intent carries none.
	ADV func(symbol string) (float64, bool)
}

// Validate applies the ADV cap. Hard de-risking intents bypass sizing: they
// must go out at full quantity.
func (g *ADVGuard) Validate(req SizeRequest) SizeDecision {
	if req.IntentType == "HARD_DERISK" {
		return SizeDecision{Valid: true, Qty: req.DesiredQty}
	}

	adv := req.AvgADV
	if adv <= 0 && g.ADV != nil {
		if v, ok := g.ADV(req.Symbol); ok {
			adv = v
		}
	}
	if adv <= 0 {
		return SizeDecision{Reason: fmt.Sprintf("adv unknown for %s", req.Symbol)}
	}

	fraction := g.MaxADVFraction
	if fraction <= 0 {
		fraction = 0.05
	}
	limit := int(adv * fraction)
	if g.CloseWindowMinutes > 0 && req.MinutesToClose > 0 && req.MinutesToClose <= g.CloseWindowMinutes {
		limit /= 2
	}
	if limit <= 0 {
		return SizeDecision{Reason: fmt.Sprintf("adv %.0f too thin for %s", adv, req.Symbol)}
	}

	if req.DesiredQty > limit {
		return SizeDecision{
			Valid:  true,
			Qty:    limit,
			Reason: fmt.Sprintf("reduced %d to %d (%.0f%% of adv %.0f)", req.DesiredQty, limit, fraction*100, adv),
		}
	}
	return SizeDecision{Valid: true, Qty: req.DesiredQty}
}

var _ Guard = (*ADVGuard)(nil)
