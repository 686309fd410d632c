package bus

import (
	"fmt"
	"sync"
	"time"
)

// DefaultClaimTimeout is how long a delivered-but-unacked entry stays owned
// by its consumer before it becomes eligible for redelivery.
const DefaultClaimTimeout = 30 * time.Second

// MemoryBus is an in-process Bus. Each topic is an append-only slice of
// entries; each consumer group tracks a read cursor plus a pending list of
// delivered-but-unacked entries.
type MemoryBus struct {
	mu           sync.Mutex
	topics       map[string]*topic
	claimTimeout time.Duration
	closed       bool
	now          func() time.Time
}

type topic struct {
	entries []entry
	groups  map[string]*group
	notify  chan struct{} // closed and replaced on every publish
	seq     uint64
}

type entry struct {
	id   string
	data []byte
}

type group struct {
	cursor  int // index of the next never-delivered entry
	pending map[string]*pendingEntry
}

type pendingEntry struct {
	idx         int
	consumer    string
	deliveredAt time.Time
	deliveries  int
}

// NewMemoryBus creates an empty bus. A claimTimeout <= 0 selects
// DefaultClaimTimeout.
func NewMemoryBus(claimTimeout time.Duration) *MemoryBus {
	if claimTimeout <= 0 {
		claimTimeout = DefaultClaimTimeout
	}
	return &MemoryBus{
		topics:       make(map[string]*topic),
		claimTimeout: claimTimeout,
		now:          time.Now,
	}
}

func (b *MemoryBus) topicLocked(name string) *topic {
	t, ok := b.topics[name]
	if !ok {
		t = &topic{
			groups: make(map[string]*group),
			notify: make(chan struct{}),
		}
		b.topics[name] = t
	}
	return t
}

// Publish appends an entry and wakes any blocked readers.
func (b *MemoryBus) Publish(name string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrClosed
	}

	t := b.topicLocked(name)
	t.seq++
	id := fmt.Sprintf("%d-%d", b.now().UnixMilli(), t.seq)

	buf := make([]byte, len(data))
	copy(buf, data)
	t.entries = append(t.entries, entry{id: id, data: buf})

	close(t.notify)
	t.notify = make(chan struct{})
	return id, nil
}

// CreateConsumerGroup registers a group that reads the topic from the
// beginning. Re-creating an existing group is a no-op.
func (b *MemoryBus) CreateConsumerGroup(name, groupName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	t := b.topicLocked(name)
	if _, ok := t.groups[groupName]; ok {
		return nil
	}
	t.groups[groupName] = &group{pending: make(map[string]*pendingEntry)}
	return nil
}

// Read claims entries for the consumer: first any pending entries whose claim
// has expired (redelivery), then new entries past the group cursor. With
// block > 0 it waits up to that long for the first entry.
func (b *MemoryBus) Read(name, groupName, consumer string, count int, block time.Duration) ([]Message, error) {
	if count <= 0 {
		count = 1
	}
	deadline := b.now().Add(block)

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrClosed
		}
		t := b.topicLocked(name)
		g, ok := t.groups[groupName]
		if !ok {
			b.mu.Unlock()
			return nil, fmt.Errorf("%w: topic %q group %q", ErrNoGroup, name, groupName)
		}

		msgs := b.claimLocked(t, g, consumer, count)
		notify := t.notify
		b.mu.Unlock()

		if len(msgs) > 0 || block <= 0 {
			return msgs, nil
		}

		remaining := deadline.Sub(b.now())
		if remaining <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-notify:
			timer.Stop()
		case <-timer.C:
			return nil, nil
		}
	}
}

func (b *MemoryBus) claimLocked(t *topic, g *group, consumer string, count int) []Message {
	var msgs []Message
	now := b.now()

	// Expired pending entries are redelivered before new ones so a crashed
	// consumer's work is not stranded behind the cursor.
	for id, p := range g.pending {
		if len(msgs) >= count {
			break
		}
		if now.Sub(p.deliveredAt) < b.claimTimeout {
			continue
		}
		p.consumer = consumer
		p.deliveredAt = now
		p.deliveries++
		msgs = append(msgs, Message{ID: id, Data: t.entries[p.idx].data})
	}

	for g.cursor < len(t.entries) && len(msgs) < count {
		e := t.entries[g.cursor]
		g.pending[e.id] = &pendingEntry{
			idx:         g.cursor,
			consumer:    consumer,
			deliveredAt: now,
			deliveries:  1,
		}
		msgs = append(msgs, Message{ID: e.id, Data: e.data})
		g.cursor++
	}
	return msgs
}

// Ack removes an entry from the group's pending list. Acking an unknown or
// already-acked ID is a no-op.
func (b *MemoryBus) Ack(name, groupName, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	t := b.topicLocked(name)
	g, ok := t.groups[groupName]
	if !ok {
		return fmt.Errorf("%w: topic %q group %q", ErrNoGroup, name, groupName)
	}
	delete(g.pending, id)
	return nil
}

// PendingCount reports delivered-but-unacked entries for a group. Used by
// tests and operator tooling.
func (b *MemoryBus) PendingCount(name, groupName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok {
		return 0
	}
	g, ok := t.groups[groupName]
	if !ok {
		return 0
	}
	return len(g.pending)
}

// Close shuts the bus down; all subsequent calls fail with ErrClosed.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, t := range b.topics {
		close(t.notify)
		t.notify = make(chan struct{})
	}
}

var _ Bus = (*MemoryBus)(nil)
