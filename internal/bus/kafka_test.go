package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKafkaBusRequiresBrokers(t *testing.T) {
	_, err := NewKafkaBus(KafkaConfig{})
	assert.Error(t, err)
}

func TestNewKafkaBusAppliesDefaults(t *testing.T) {
	b, err := NewKafkaBus(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, 100*time.Millisecond, b.cfg.RetryBackoff)
	assert.Equal(t, 5*time.Second, b.cfg.WriteTimeout)
	assert.Equal(t, 10*1024*1024, b.cfg.MaxBytes)
}

func TestKafkaBusClosedRejectsCalls(t *testing.T) {
	b, err := NewKafkaBus(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), "alerts", "1", map[string]int{"id": 1}), ErrBusClosed)
	assert.ErrorIs(t, b.Consume(context.Background(), "alerts", "workers", nil), ErrBusClosed)
}

func TestKafkaBusSerializeFailureDoesNotDial(t *testing.T) {
	b, err := NewKafkaBus(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	defer b.Close()

	assert.ErrorIs(t, b.Publish(context.Background(), "alerts", "1", make(chan int)), ErrSerializeFailed)
	assert.Equal(t, Stats{MessagesFailed: 1}, b.Stats())
}
