package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"vitalflow/internal/bus"
	"vitalflow/internal/models"
	"vitalflow/internal/store"
)

func newTestStore(t *testing.T) *store.Gorm {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	g, err := store.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
	require.NoError(t, err)
	return g
}

func intp(v int) *int { return &v }

func TestOnReadingPersistsAndPublishes(t *testing.T) {
	st := newTestStore(t)
	mem := bus.NewMemory()
	mem.Subscribe("alerts", "workers")

	fixed := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	m := NewManager(st, mem, "alerts").WithClock(func() time.Time { return fixed })

	reading := &models.VitalsReading{
		PatientID:   3,
		EncounterID: 7,
		Timestamp:   fixed.Add(-time.Minute),
		HRBpm:       intp(140),
	}
	created := m.OnReading(context.Background(), reading)

	require.Len(t, created, 1)
	assert.Equal(t, models.AlertTachycardia, created[0].Type)
	assert.Equal(t, models.SeverityMedium, created[0].Severity)
	assert.NotZero(t, created[0].ID)

	stored, err := st.GetAlert(context.Background(), created[0].ID)
	require.NoError(t, err)
	assert.WithinDuration(t, reading.Timestamp, stored.EventTimestamp, time.Second)
	assert.False(t, stored.Resolved)

	require.Equal(t, 1, mem.Pending("alerts", "workers"))

	ctx, cancel := context.WithCancel(context.Background())
	var event models.AlertEvent
	_ = mem.Consume(ctx, "alerts", "workers", func(ctx context.Context, msg bus.Message) error {
		assert.Equal(t, []byte("7"), msg.Key)
		require.NoError(t, json.Unmarshal(msg.Value, &event))
		cancel()
		return nil
	})

	assert.Equal(t, created[0].ID, event.ID)
	assert.Equal(t, uint(7), event.EncounterID)
	assert.Equal(t, models.AlertTachycardia, event.Type)
}

func TestOnReadingOneEventPerAlert(t *testing.T) {
	st := newTestStore(t)
	mem := bus.NewMemory()
	mem.Subscribe("alerts", "workers")
	m := NewManager(st, mem, "alerts")

	temp := 39.0
	reading := &models.VitalsReading{
		PatientID:   3,
		EncounterID: 7,
		Timestamp:   time.Now().UTC(),
		HRBpm:       intp(110),
		RespRateBpm: intp(25),
		TempC:       &temp,
	}
	created := m.OnReading(context.Background(), reading)

	assert.Len(t, created, 3)
	assert.Equal(t, 3, mem.Pending("alerts", "workers"))
}

func TestOnReadingNoCandidates(t *testing.T) {
	st := newTestStore(t)
	mem := bus.NewMemory()
	mem.Subscribe("alerts", "workers")
	m := NewManager(st, mem, "alerts")

	reading := &models.VitalsReading{
		PatientID:   3,
		EncounterID: 7,
		Timestamp:   time.Now().UTC(),
		HRBpm:       intp(80),
	}
	created := m.OnReading(context.Background(), reading)

	assert.Empty(t, created)
	assert.Zero(t, mem.Pending("alerts", "workers"))
}

func TestOnReadingSurvivesPublishFailure(t *testing.T) {
	st := newTestStore(t)
	mem := bus.NewMemory()
	require.NoError(t, mem.Close())

	m := NewManager(st, mem, "alerts")
	reading := &models.VitalsReading{
		PatientID:   3,
		EncounterID: 7,
		Timestamp:   time.Now().UTC(),
		HRBpm:       intp(140),
	}
	created := m.OnReading(context.Background(), reading)

	// The alert is persisted even though the bus is unreachable
	require.Len(t, created, 1)
	stored, err := st.GetAlert(context.Background(), created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertTachycardia, stored.Type)
}

func TestResolve(t *testing.T) {
	st := newTestStore(t)
	mem := bus.NewMemory()
	m := NewManager(st, mem, "alerts")

	reading := &models.VitalsReading{
		PatientID:   3,
		EncounterID: 7,
		Timestamp:   time.Now().UTC(),
		SpO2Pct:     intp(85),
	}
	created := m.OnReading(context.Background(), reading)
	require.Len(t, created, 1)

	resolved, err := m.Resolve(context.Background(), created[0].ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)

	again, err := m.Resolve(context.Background(), created[0].ID)
	require.NoError(t, err)
	assert.True(t, again.Resolved)

	_, err = m.Resolve(context.Background(), 9999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
