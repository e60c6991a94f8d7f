package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"sync/atomic"
	"time"

	"vitalflow/internal/bus"
	"vitalflow/internal/enrich"
	"vitalflow/internal/logger"
	"vitalflow/internal/metrics"
	"vitalflow/internal/models"
	"vitalflow/internal/store"
)

// Bounded context gathered per alert
const (
	recentVitalsLimit = 5
	contextWindow     = time.Hour
	unknownPatientAge = 0
)

// Store is the repository surface the worker needs
type Store interface {
	GetAlert(ctx context.Context, id uint) (*models.Alert, error)
	HasExplanation(ctx context.Context, alertID uint) (bool, error)
	CreateExplanation(ctx context.Context, e *models.AlertExplanation) error
	VitalsSince(ctx context.Context, encounterID uint, since time.Time, limit int) ([]models.VitalsReading, error)
	GetPatient(ctx context.Context, id uint) (*models.Patient, error)
}

// Worker is the alert enrichment consumer. Multiple instances may run
// concurrently in one consumer group; correctness under redelivery rests on
// the read-check plus the store's conditional insert.
type Worker struct {
	store         Store
	explainer     enrich.Explainer
	topic         string
	group         string
	enrichTimeout time.Duration
	now           func() time.Time

	// Metrics
	processed atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker configuration
type Config struct {
	Store         Store
	Explainer     enrich.Explainer
	Topic         string
	Group         string
	EnrichTimeout time.Duration
}

// NewWorker creates an enrichment worker
func NewWorker(cfg Config) *Worker {
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = 30 * time.Second
	}
	return &Worker{
		store:         cfg.Store,
		explainer:     cfg.Explainer,
		topic:         cfg.Topic,
		group:         cfg.Group,
		enrichTimeout: cfg.EnrichTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Run consumes the alerts topic until the context is cancelled
func (w *Worker) Run(ctx context.Context, sub bus.Subscriber) error {
	log := logger.WithComponent("copilot")
	log.Info().
		Str("topic", w.topic).
		Str("group", w.group).
		Msg("enrichment worker started")

	err := sub.Consume(ctx, w.topic, w.group, w.Handle)

	log.Info().
		Uint64("processed", w.processed.Load()).
		Uint64("failed", w.failed.Load()).
		Msg("enrichment worker stopped")
	return err
}

// Handle processes one alert-created message. It never returns a fatal
// condition: every failure mode is logged and isolated so the consumer loop
// survives for subsequent messages.
func (w *Worker) Handle(ctx context.Context, msg bus.Message) (err error) {
	log := logger.WithComponent("copilot")

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("message handler panic recovered")
			metrics.PanicsRecovered.WithLabelValues("copilot").Inc()
			w.failed.Add(1)
			err = nil
		}
	}()

	var event models.AlertEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Warn().Err(err).Msg("malformed alert event, discarded")
		w.failed.Add(1)
		return nil
	}

	if event.ID == 0 {
		log.Warn().Msg("alert event missing id, discarded")
		w.failed.Add(1)
		return nil
	}

	// Re-fetch: the event payload is a notification, not a source of truth
	alert, err := w.store.GetAlert(ctx, event.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Uint("alert_id", event.ID).Msg("alert not found, discarded")
			metrics.EnrichmentsTotal.WithLabelValues("missing_alert").Inc()
			w.failed.Add(1)
			return nil
		}
		log.Error().Err(err).Uint("alert_id", event.ID).Msg("alert fetch failed")
		w.failed.Add(1)
		return err
	}

	// Idempotency guard against at-least-once redelivery. The conditional
	// insert below closes the read-then-write race this check leaves open.
	exists, err := w.store.HasExplanation(ctx, alert.ID)
	if err != nil {
		log.Error().Err(err).Uint("alert_id", alert.ID).Msg("explanation lookup failed")
		w.failed.Add(1)
		return err
	}
	if exists {
		log.Debug().Uint("alert_id", alert.ID).Msg("explanation already exists, skipped")
		metrics.EnrichmentsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	ac := w.gatherContext(ctx, alert)

	start := w.now()
	callCtx, cancel := context.WithTimeout(ctx, w.enrichTimeout)
	explanation, err := w.explainer.ExplainAlert(callCtx, ac)
	cancel()
	metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		// No inline retry: the alert stays unexplained until a manual rerun
		log.Error().Err(err).Uint("alert_id", alert.ID).Msg("enrichment failed, message skipped")
		metrics.EnrichmentsTotal.WithLabelValues("failed").Inc()
		w.failed.Add(1)
		return nil
	}

	record := &models.AlertExplanation{
		AlertID:          alert.ID,
		Summary:          explanation.Summary,
		RiskLevel:        explanation.RiskLevel,
		SuggestedChecks:  explanation.SuggestedChecks,
		SuggestedActions: explanation.SuggestedActions,
	}

	if err := w.store.CreateExplanation(ctx, record); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// A concurrent worker won the race; this delivery is a no-op
			log.Debug().Uint("alert_id", alert.ID).Msg("explanation raced, duplicate discarded")
			metrics.EnrichmentsTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
		log.Error().Err(err).Uint("alert_id", alert.ID).Msg("explanation persist failed")
		w.failed.Add(1)
		return err
	}

	metrics.EnrichmentsTotal.WithLabelValues("enriched").Inc()
	w.processed.Add(1)
	log.Info().
		Uint("alert_id", alert.ID).
		Str("risk_level", record.RiskLevel).
		Msg("alert enriched")
	return nil
}

// gatherContext assembles the bounded enrichment input: demographics plus up
// to the 5 most recent readings within the trailing hour. Missing pieces
// degrade to zero values rather than failing the message.
func (w *Worker) gatherContext(ctx context.Context, alert *models.Alert) *enrich.AlertContext {
	log := logger.WithComponent("copilot")

	ac := &enrich.AlertContext{
		AlertType: string(alert.Type),
		Severity:  string(alert.Severity),
		Message:   alert.Message,
		Gender:    "Unknown",
	}

	patient, err := w.store.GetPatient(ctx, alert.PatientID)
	if err != nil {
		log.Warn().Err(err).Uint("patient_id", alert.PatientID).Msg("patient lookup failed")
		ac.PatientAge = unknownPatientAge
	} else {
		if patient.BirthYear > 0 {
			ac.PatientAge = w.now().Year() - patient.BirthYear
		}
		if patient.Gender != "" {
			ac.Gender = patient.Gender
		}
	}

	since := w.now().Add(-contextWindow)
	readings, err := w.store.VitalsSince(ctx, alert.EncounterID, since, recentVitalsLimit)
	if err != nil {
		log.Warn().Err(err).Uint("encounter_id", alert.EncounterID).Msg("vitals lookup failed")
		return ac
	}

	for i := range readings {
		ac.RecentVitals = append(ac.RecentVitals, enrich.Snapshot(&readings[i]))
	}
	return ac
}

// Stats returns worker counters
func (w *Worker) Stats() Stats {
	return Stats{
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
	}
}

// Stats holds worker metrics
type Stats struct {
	Processed uint64
	Failed    uint64
}
