package bus

import (
	"context"
)

// Message is a single event delivered from a topic
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// Handler processes one delivered message. Returning an error signals the
// message was not handled; delivery is still acknowledged, so handlers own
// their retry policy.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends events to a topic. Delivery is at-least-once; ordering is
// best-effort per key only.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
	Close() error
}

// Subscriber consumes a topic on behalf of a consumer group. Consume blocks
// until the context is cancelled. A message may be redelivered after a
// consumer restart, so handlers must tolerate duplicates and reordering.
type Subscriber interface {
	Consume(ctx context.Context, topic, group string, h Handler) error
	Close() error
}

// Bus is both sides of the contract, for implementations that carry both
type Bus interface {
	Publisher
	Subscriber
}
