package alerts

import (
	"context"
	"fmt"
	"time"

	"vitalflow/internal/bus"
	"vitalflow/internal/logger"
	"vitalflow/internal/metrics"
	"vitalflow/internal/models"
	"vitalflow/internal/rules"
	"vitalflow/internal/store"
)

// Manager owns the alert lifecycle: it turns rule firings into persisted
// alerts, announces them on the bus, and handles resolution.
type Manager struct {
	store store.AlertStore
	pub   bus.Publisher
	topic string
	now   func() time.Time
}

// NewManager wires the lifecycle manager. The publisher is injected so tests
// can substitute an in-process bus.
func NewManager(s store.AlertStore, pub bus.Publisher, topic string) *Manager {
	return &Manager{
		store: s,
		pub:   pub,
		topic: topic,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// OnReading runs the rule engine against the reading, persists one alert per
// candidate, and publishes one alert-created event per persisted alert.
// Publish failures are logged and swallowed: vitals ingestion must succeed
// even when the bus is unreachable. Returns the alerts that were persisted.
func (m *Manager) OnReading(ctx context.Context, reading *models.VitalsReading) []models.Alert {
	log := logger.WithComponent("alert_manager")

	candidates := rules.Evaluate(reading)
	if len(candidates) == 0 {
		return nil
	}

	created := make([]models.Alert, 0, len(candidates))
	for _, c := range candidates {
		alert := models.Alert{
			PatientID:      reading.PatientID,
			EncounterID:    reading.EncounterID,
			Type:           c.Type,
			Severity:       c.Severity,
			Message:        c.Message,
			EventTimestamp: reading.Timestamp,
			CreatedAt:      m.now(),
		}

		if err := m.store.CreateAlert(ctx, &alert); err != nil {
			log.Error().
				Err(err).
				Str("type", string(c.Type)).
				Uint("encounter_id", reading.EncounterID).
				Msg("failed to persist alert")
			continue
		}

		metrics.RulesFiredTotal.WithLabelValues(string(c.Type), string(c.Severity)).Inc()
		metrics.AlertsPersistedTotal.Inc()

		log.Info().
			Uint("alert_id", alert.ID).
			Str("type", string(alert.Type)).
			Str("severity", string(alert.Severity)).
			Uint("encounter_id", alert.EncounterID).
			Msg("alert created")

		m.publish(ctx, &alert)
		created = append(created, alert)
	}

	return created
}

// publish announces the alert on the bus, keyed by encounter so per-patient
// ordering is best-effort preserved. Failure is fire-and-forget.
func (m *Manager) publish(ctx context.Context, alert *models.Alert) {
	key := fmt.Sprintf("%d", alert.EncounterID)
	if err := m.pub.Publish(ctx, m.topic, key, models.NewAlertEvent(alert)); err != nil {
		metrics.AlertPublishFailures.Inc()
		log := logger.WithComponent("alert_manager")
		log.Error().
			Err(err).
			Uint("alert_id", alert.ID).
			Str("topic", m.topic).
			Msg("failed to publish alert event")
	}
}

// Resolve marks the alert resolved. Idempotent on an already-resolved alert;
// store.ErrNotFound surfaces for unknown ids.
func (m *Manager) Resolve(ctx context.Context, id uint) (*models.Alert, error) {
	alert, err := m.store.ResolveAlert(ctx, id, m.now())
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("alert_manager")
	log.Info().
		Uint("alert_id", alert.ID).
		Msg("alert resolved")
	return alert, nil
}
