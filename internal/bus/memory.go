package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-process Bus used in tests and single-node setups. Each
// consumer group gets one delivery per published message; consumers sharing
// a group share the group's channel, mirroring partition assignment.
type Memory struct {
	mu     sync.Mutex
	groups map[string]map[string]chan Message // topic -> group -> deliveries
	closed bool
}

// NewMemory creates an in-process bus
func NewMemory() *Memory {
	return &Memory{groups: make(map[string]map[string]chan Message)}
}

func (m *Memory) groupChan(topic, group string) chan Message {
	byGroup, ok := m.groups[topic]
	if !ok {
		byGroup = make(map[string]chan Message)
		m.groups[topic] = byGroup
	}
	ch, ok := byGroup[group]
	if !ok {
		ch = make(chan Message, 256)
		byGroup[group] = ch
	}
	return ch
}

// Publish fans the message out to every consumer group on the topic.
// Messages published before any group subscribes are dropped.
func (m *Memory) Publish(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrBusClosed
	}

	msg := Message{Topic: topic, Key: []byte(key), Value: data}
	for _, ch := range m.groups[topic] {
		select {
		case ch <- msg:
		default:
			return fmt.Errorf("bus buffer full for topic %q", topic)
		}
	}
	return nil
}

// Consume delivers messages for the group until the context is cancelled
func (m *Memory) Consume(ctx context.Context, topic, group string, h Handler) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrBusClosed
	}
	ch := m.groupChan(topic, group)
	m.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			// Handler errors do not stop delivery; the handler owns its
			// failure policy, same as the Kafka implementation.
			_ = h(ctx, msg)
		}
	}
}

// Subscribe registers the group so subsequent publishes are retained for it,
// without starting a consume loop. Useful in tests that publish first.
func (m *Memory) Subscribe(topic, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupChan(topic, group)
}

// Pending returns the number of undelivered messages for a group
func (m *Memory) Pending(topic, group string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.groupChan(topic, group))
}

// Close shuts the bus down; subsequent publishes fail
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, byGroup := range m.groups {
		for _, ch := range byGroup {
			close(ch)
		}
	}
	return nil
}
