package orders

import (
	"context"
	"math"
	"time"
)

// Start launches the cancel and replace loops. Each runs on its own interval
// and never blocks the other; both hold the registry lock only for the brief
// candidate scan, never across the cancel callback or the price function.
func (c *Controller) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	c.stopLoops = cancel
	c.loopsDone = make(chan struct{})

	done := make(chan struct{}, 2)
	if c.cfg.CancelCheckInterval > 0 {
		go func() {
			c.runCancelLoop(loopCtx)
			done <- struct{}{}
		}()
	} else {
		done <- struct{}{}
	}
	if c.cfg.ReplaceCheckInterval > 0 {
		go func() {
			c.runReplaceLoop(loopCtx)
			done <- struct{}{}
		}()
	} else {
		done <- struct{}{}
	}
	go func() {
		<-done
		<-done
		close(c.loopsDone)
	}()
}

// Stop cancels the loops cooperatively and waits up to the shutdown grace
// period before giving up on them.
func (c *Controller) Stop() {
	if c.stopLoops == nil {
		return
	}
	c.stopLoops()

	grace := c.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	select {
	case <-c.loopsDone:
	case <-time.After(grace):
		c.log.Warn("controller loops did not stop within grace period", "grace", grace)
	}
}

func (c *Controller) runCancelLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CancelCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cancelSweep()
		}
	}
}

func (c *Controller) runReplaceLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ReplaceCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.replaceSweep()
		}
	}
}

// cancelSweep cancels active orders whose age exceeds the configured maximum.
// By default only untouched orders are swept; CancelUnfilled widens the sweep
// to partial fills.
func (c *Controller) cancelSweep() {
	now := c.now()

	type target struct{ provider, id string }
	var targets []target

	c.mu.Lock()
	for provider, part := range c.orders {
		for _, o := range part {
			if !o.Status.Active() || o.OrphanedProvider {
				continue
			}
			if now.Sub(o.CreatedAt) <= c.cfg.MaxOrderAge {
				continue
			}
			if o.FilledQty != 0 && !(c.cfg.CancelUnfilled && o.FilledQty < o.LotQty) {
				continue
			}
			targets = append(targets, target{provider, o.ID})
		}
	}
	c.mu.Unlock()

	for _, t := range targets {
		if _, err := c.Cancel(t.provider, t.id, "max order age exceeded"); err != nil {
			// Raced with a fill or another cancel; nothing to do.
			c.log.Debug("stale cancel candidate", "provider", t.provider, "order_id", t.id, "error", err)
		}
	}
}

// replaceSweep re-prices eligible orders whose market has moved by at least
// the improvement threshold.
func (c *Controller) replaceSweep() {
	if c.priceFn == nil {
		return
	}

	type candidate struct {
		provider, id, symbol string
		price                float64
	}
	var candidates []candidate

	c.mu.Lock()
	for provider, part := range c.orders {
		for _, o := range part {
			if !o.Status.Active() || o.OrphanedProvider {
				continue
			}
			if o.ReplaceCount >= c.cfg.MaxReplaceCount {
				continue
			}
			if o.FilledQty != 0 && !c.cfg.ReplacePartialFills {
				continue
			}
			candidates = append(candidates, candidate{provider, o.ID, o.Symbol, o.Price})
		}
	}
	c.mu.Unlock()

	for _, cd := range candidates {
		current, ok := c.priceFn(cd.symbol)
		if !ok {
			continue
		}
		if math.Abs(current-cd.price) < c.cfg.PriceImprovementThreshold {
			continue
		}
		if _, err := c.Replace(cd.provider, cd.id, current); err != nil {
			c.log.Debug("stale replace candidate", "provider", cd.provider, "order_id", cd.id, "error", err)
		}
	}
}
