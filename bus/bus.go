// Package bus defines the append-only event log the trading core runs on:
// per-topic streams with consumer groups, at-least-once delivery, and
// explicit acks. The in-process implementation in memory.go is the default;
// production deployments can swap in any log with the same semantics.
package bus

import (
	"errors"
	"time"
)

var (
	// ErrNoGroup is returned when reading through a consumer group that was
	// never created on the topic.
	ErrNoGroup = errors.New("consumer group does not exist")

	// ErrClosed is returned once the bus has been shut down.
	ErrClosed = errors.New("bus closed")
)

// Message is one delivered stream entry. ID is unique and ordered within its
// topic and must be passed back to Ack once the entry has been processed.
type Message struct {
	ID   string
	Data []byte
}

// Bus is the event log contract. Delivery through a consumer group is
// at-least-once: an entry read but never acked is redelivered to a later
// Read after the claim timeout elapses.
type Bus interface {
	// Publish appends an event to the topic and returns its entry ID.
	Publish(topic string, data []byte) (string, error)

	// Read delivers up to count entries for the given group and consumer.
	// With block > 0 the call waits up to that long for at least one entry;
	// with block == 0 it returns immediately with whatever is available.
	Read(topic, group, consumer string, count int, block time.Duration) ([]Message, error)

	// Ack confirms an entry was processed and removes it from the group's
	// pending list.
	Ack(topic, group, id string) error

	// CreateConsumerGroup registers a group on a topic. Creating a group
	// that already exists is not an error.
	CreateConsumerGroup(topic, group string) error
}
