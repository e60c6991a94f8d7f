package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	ID   uint   `json:"id"`
	Kind string `json:"kind"`
}

func TestMemoryPublishBeforeSubscribeIsDropped(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Publish(context.Background(), "alerts", "1", testEvent{ID: 1}))

	m.Subscribe("alerts", "workers")
	assert.Zero(t, m.Pending("alerts", "workers"))
}

func TestMemoryDeliversToEveryGroup(t *testing.T) {
	m := NewMemory()
	m.Subscribe("alerts", "workers")
	m.Subscribe("alerts", "audit")

	require.NoError(t, m.Publish(context.Background(), "alerts", "7", testEvent{ID: 42, Kind: "fever"}))

	assert.Equal(t, 1, m.Pending("alerts", "workers"))
	assert.Equal(t, 1, m.Pending("alerts", "audit"))
	assert.Zero(t, m.Pending("other", "workers"))
}

func TestMemoryConsumeDeliversPayload(t *testing.T) {
	m := NewMemory()
	m.Subscribe("alerts", "workers")
	require.NoError(t, m.Publish(context.Background(), "alerts", "7", testEvent{ID: 42, Kind: "fever"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got Message
	err := m.Consume(ctx, "alerts", "workers", func(ctx context.Context, msg Message) error {
		got = msg
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, "alerts", got.Topic)
	assert.Equal(t, []byte("7"), got.Key)

	var event testEvent
	require.NoError(t, json.Unmarshal(got.Value, &event))
	assert.Equal(t, testEvent{ID: 42, Kind: "fever"}, event)
}

func TestMemoryHandlerErrorDoesNotStopDelivery(t *testing.T) {
	m := NewMemory()
	m.Subscribe("alerts", "workers")

	ctx := context.Background()
	require.NoError(t, m.Publish(ctx, "alerts", "1", testEvent{ID: 1}))
	require.NoError(t, m.Publish(ctx, "alerts", "2", testEvent{ID: 2}))

	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var seen []uint
	_ = m.Consume(consumeCtx, "alerts", "workers", func(ctx context.Context, msg Message) error {
		var event testEvent
		require.NoError(t, json.Unmarshal(msg.Value, &event))
		seen = append(seen, event.ID)
		if len(seen) == 2 {
			cancel()
		}
		return assert.AnError
	})

	assert.Equal(t, []uint{1, 2}, seen)
}

func TestMemoryClose(t *testing.T) {
	m := NewMemory()
	m.Subscribe("alerts", "workers")

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Publish(context.Background(), "alerts", "1", testEvent{ID: 2}), ErrBusClosed)
	assert.ErrorIs(t, m.Consume(context.Background(), "alerts", "workers", nil), ErrBusClosed)
}

func TestMemoryCloseDrainsActiveConsumer(t *testing.T) {
	m := NewMemory()
	m.Subscribe("alerts", "workers")

	ctx := context.Background()
	require.NoError(t, m.Publish(ctx, "alerts", "1", testEvent{ID: 1}))

	done := make(chan error, 1)
	delivered := make(chan struct{})
	go func() {
		done <- m.Consume(ctx, "alerts", "workers", func(ctx context.Context, msg Message) error {
			close(delivered)
			return nil
		})
	}()

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}

	require.NoError(t, m.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after close")
	}
}

func TestMemoryPublishUnserializable(t *testing.T) {
	m := NewMemory()
	m.Subscribe("alerts", "workers")

	err := m.Publish(context.Background(), "alerts", "1", make(chan int))
	assert.ErrorIs(t, err, ErrSerializeFailed)
}
