package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/hampro/tradecore/bus"
	"github.com/hampro/tradecore/event"
)

// Consumer feeds the daily ledger from the orders topic. It runs as its own
// single-goroutine poll loop, independent of the execution service.
type Consumer struct {
	bus      bus.Bus
	daily    *Daily
	group    string
	consumer string
	block    time.Duration
	log      *slog.Logger
}

// NewConsumer wires a ledger consumer on the orders topic.
func NewConsumer(b bus.Bus, d *Daily, group, consumer string, block time.Duration, log *slog.Logger) *Consumer {
	if block <= 0 {
		block = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{bus: b, daily: d, group: group, consumer: consumer, block: block, log: log}
}

// Run polls the orders topic until the context is cancelled. Undecodable
// events are acked and dropped; transient bus errors back off briefly.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.bus.CreateConsumerGroup(event.TopicOrders, c.group); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := c.bus.Read(event.TopicOrders, c.group, c.consumer, 32, c.block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("ledger consumer read failed", "error", err)
			time.Sleep(250 * time.Millisecond)
			continue
		}

		for _, m := range msgs {
			ev, err := event.DecodeOrderEvent(m.Data)
			if err != nil {
				c.log.Error("undecodable order event dropped", "message_id", m.ID, "error", err)
			} else {
				c.daily.RecordFill(ev)
			}
			if err := c.bus.Ack(event.TopicOrders, c.group, m.ID); err != nil {
				c.log.Warn("ledger ack failed", "message_id", m.ID, "error", err)
			}
		}
	}
}
