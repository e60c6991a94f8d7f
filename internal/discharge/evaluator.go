package discharge

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"vitalflow/internal/config"
	"vitalflow/internal/enrich"
	"vitalflow/internal/logger"
	"vitalflow/internal/metrics"
	"vitalflow/internal/models"
	"vitalflow/internal/store"
)

// Stability bounds: every reading inside the vitals window must satisfy all
// of these for the fields it carries.
const (
	StableHRMin    = 60
	StableHRMax    = 110
	StableSpO2Min  = 94
	StableSysMax   = 150
	StableDiaMax   = 95
	StableTempMaxC = 37.8
)

const planVitalsLimit = 10

// Store is the repository surface the evaluator needs
type Store interface {
	GetEncounter(ctx context.Context, id uint) (*models.Encounter, error)
	ListDischargeable(ctx context.Context) ([]models.Encounter, error)
	DischargeEncounter(ctx context.Context, id uint, at time.Time) (*models.Encounter, error)
	AlertsSince(ctx context.Context, encounterID uint, severity models.Severity, since time.Time) ([]models.Alert, error)
	VitalsSince(ctx context.Context, encounterID uint, since time.Time, limit int) ([]models.VitalsReading, error)
	GetPatient(ctx context.Context, id uint) (*models.Patient, error)
	GetRoom(ctx context.Context, id uint) (*models.Room, error)
	CreateDischargePlan(ctx context.Context, p *models.DischargePlan) error
	GetDischargePlan(ctx context.Context, encounterID uint) (*models.DischargePlan, error)
	CreateFollowup(ctx context.Context, f *models.FollowupAppointment) error
}

// Evaluator certifies discharge readiness and drives the auto-discharge
// batch. Window constants come from config, not ambient globals.
type Evaluator struct {
	store       Store
	planner     enrich.Planner
	cfg         config.Discharge
	planTimeout time.Duration
	now         func() time.Time
}

// NewEvaluator wires the evaluator
func NewEvaluator(s Store, planner enrich.Planner, cfg config.Discharge, planTimeout time.Duration) *Evaluator {
	if planTimeout <= 0 {
		planTimeout = 30 * time.Second
	}
	return &Evaluator{
		store:       s,
		planner:     planner,
		cfg:         cfg,
		planTimeout: planTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// IsStable evaluates the stability predicate for an encounter as of now.
// The reason string names the first failed gate, for the batch tally.
func (e *Evaluator) IsStable(ctx context.Context, encounterID uint) (bool, string, error) {
	enc, err := e.store.GetEncounter(ctx, encounterID)
	if err != nil {
		return false, "", err
	}

	if enc.Status != models.EncounterActive {
		return false, "encounter not active", nil
	}
	if enc.AutoDischargeBlocked {
		return false, "auto-discharge blocked by staff", nil
	}

	now := e.now()

	minStay := time.Duration(e.cfg.MinDaysAdmitted) * 24 * time.Hour
	if now.Sub(enc.AdmittedAt) < minStay {
		return false, fmt.Sprintf("admitted less than %d days", e.cfg.MinDaysAdmitted), nil
	}

	alertSince := now.Add(-time.Duration(e.cfg.AlertWindowHours) * time.Hour)
	highAlerts, err := e.store.AlertsSince(ctx, encounterID, models.SeverityHigh, alertSince)
	if err != nil {
		return false, "", err
	}
	if len(highAlerts) > 0 {
		return false, fmt.Sprintf("%d high-severity alerts in last %dh", len(highAlerts), e.cfg.AlertWindowHours), nil
	}

	vitalsSince := now.Add(-time.Duration(e.cfg.VitalsWindowHours) * time.Hour)
	readings, err := e.store.VitalsSince(ctx, encounterID, vitalsSince, 0)
	if err != nil {
		return false, "", err
	}
	if len(readings) == 0 {
		// Cannot certify stability without data
		return false, "no vitals readings in stability window", nil
	}

	for i := range readings {
		if reason, ok := readingStable(&readings[i]); !ok {
			return false, reason, nil
		}
	}

	return true, "", nil
}

// readingStable checks a single reading against the stability bounds.
// A missing field does not fail the reading.
func readingStable(v *models.VitalsReading) (string, bool) {
	if v.HRBpm != nil && (*v.HRBpm < StableHRMin || *v.HRBpm > StableHRMax) {
		return fmt.Sprintf("hr %d outside %d-%d", *v.HRBpm, StableHRMin, StableHRMax), false
	}
	if v.SpO2Pct != nil && *v.SpO2Pct < StableSpO2Min {
		return fmt.Sprintf("spo2 %d below %d", *v.SpO2Pct, StableSpO2Min), false
	}
	if v.BPSystolic != nil && *v.BPSystolic > StableSysMax {
		return fmt.Sprintf("bp systolic %d above %d", *v.BPSystolic, StableSysMax), false
	}
	if v.BPDiastolic != nil && *v.BPDiastolic > StableDiaMax {
		return fmt.Sprintf("bp diastolic %d above %d", *v.BPDiastolic, StableDiaMax), false
	}
	if v.TempC != nil && *v.TempC > StableTempMaxC {
		return fmt.Sprintf("temp %.1f above %.1f", *v.TempC, StableTempMaxC), false
	}
	return "", true
}

// Discharge transitions the encounter to discharged and frees its room.
// store.ErrConflict surfaces when the encounter is not active; the store's
// conditional update makes a concurrent double discharge fail cleanly.
func (e *Evaluator) Discharge(ctx context.Context, encounterID uint) (*models.Encounter, error) {
	enc, err := e.store.DischargeEncounter(ctx, encounterID, e.now())
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("discharge")
	log.Info().
		Uint("encounter_id", enc.ID).
		Uint("room_id", enc.RoomID).
		Msg("encounter discharged")
	return enc, nil
}

// GeneratePlan gathers encounter context, invokes the plan enrichment, and
// persists the DischargePlan plus its derived followup appointment. If a
// plan already exists, the existing plan is returned.
func (e *Evaluator) GeneratePlan(ctx context.Context, encounterID uint) (*models.DischargePlan, error) {
	log := logger.WithComponent("discharge")

	enc, err := e.store.GetEncounter(ctx, encounterID)
	if err != nil {
		return nil, err
	}

	pc := e.gatherPlanContext(ctx, enc)

	callCtx, cancel := context.WithTimeout(ctx, e.planTimeout)
	plan, err := e.planner.PlanDischarge(callCtx, pc)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("plan generation: %w", err)
	}

	record := &models.DischargePlan{
		EncounterID:          enc.ID,
		PatientID:            enc.PatientID,
		Summary:              plan.DischargeSummary,
		HomeCareInstructions: plan.HomeCareInstructions,
		RecommendedMeds:      plan.RecommendedMeds,
		FollowupDays:         plan.FollowupDays,
	}
	if record.FollowupDays <= 0 {
		record.FollowupDays = 7
	}

	if err := e.store.CreateDischargePlan(ctx, record); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return e.store.GetDischargePlan(ctx, enc.ID)
		}
		return nil, err
	}

	followup := &models.FollowupAppointment{
		EncounterID:  enc.ID,
		PatientID:    enc.PatientID,
		ScheduledFor: e.now().AddDate(0, 0, record.FollowupDays),
		Status:       "pending",
	}
	if err := e.store.CreateFollowup(ctx, followup); err != nil {
		// The plan is the care-critical artifact; a missing followup row is
		// recoverable by staff.
		log.Error().Err(err).Uint("encounter_id", enc.ID).Msg("followup persist failed")
	}

	log.Info().
		Uint("encounter_id", enc.ID).
		Int("followup_days", record.FollowupDays).
		Msg("discharge plan generated")
	return record, nil
}

// gatherPlanContext assembles plan input; missing pieces degrade to zero
// values rather than failing the plan.
func (e *Evaluator) gatherPlanContext(ctx context.Context, enc *models.Encounter) *enrich.PlanContext {
	log := logger.WithComponent("discharge")

	pc := &enrich.PlanContext{
		Gender:     "Unknown",
		Department: "Unknown",
		AdmittedAt: enc.AdmittedAt.Format(time.RFC3339),
	}
	if enc.DischargedAt != nil {
		pc.DischargedAt = enc.DischargedAt.Format(time.RFC3339)
	}

	if patient, err := e.store.GetPatient(ctx, enc.PatientID); err == nil {
		if patient.BirthYear > 0 {
			pc.PatientAge = e.now().Year() - patient.BirthYear
		}
		if patient.Gender != "" {
			pc.Gender = patient.Gender
		}
	} else {
		log.Warn().Err(err).Uint("patient_id", enc.PatientID).Msg("patient lookup failed")
	}

	if enc.RoomID != 0 {
		if room, err := e.store.GetRoom(ctx, enc.RoomID); err == nil {
			pc.Department = room.Department
		}
	}

	if readings, err := e.store.VitalsSince(ctx, enc.ID, time.Time{}, planVitalsLimit); err == nil {
		for i := range readings {
			pc.RecentVitals = append(pc.RecentVitals, enrich.Snapshot(&readings[i]))
		}
	}

	if alerts, err := e.store.AlertsSince(ctx, enc.ID, "", time.Time{}); err == nil {
		pc.AlertCount = len(alerts)
	}

	return pc
}

// RunResult is the tally returned by one auto-discharge batch run
type RunResult struct {
	Evaluated      int             `json:"evaluated"`
	AutoDischarged []uint          `json:"auto_discharged"`
	Skipped        []uint          `json:"skipped"`
	Reasons        map[uint]string `json:"reasons"`
}

// RunAutoDischarge evaluates every active, unblocked encounter and
// discharges the stable ones. Failures are isolated per encounter: one
// encounter's error is recorded against it alone and the run continues.
// The runner is assumed single-flight; a concurrent discharge of the same
// encounter fails with a conflict, not a double transition.
func (e *Evaluator) RunAutoDischarge(ctx context.Context) (*RunResult, error) {
	log := logger.WithComponent("discharge")
	metrics.DischargeRunsTotal.Inc()

	encounters, err := e.store.ListDischargeable(ctx)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		Evaluated:      len(encounters),
		AutoDischarged: []uint{},
		Skipped:        []uint{},
		Reasons:        map[uint]string{},
	}

	for i := range encounters {
		id := encounters[i].ID
		metrics.DischargeEvaluatedTotal.Inc()

		if err := e.evaluateOne(ctx, id, result); err != nil {
			result.Skipped = append(result.Skipped, id)
			result.Reasons[id] = fmt.Sprintf("error: %v", err)
			log.Error().Err(err).Uint("encounter_id", id).Msg("encounter evaluation failed")
		}
	}

	log.Info().
		Int("evaluated", result.Evaluated).
		Int("discharged", len(result.AutoDischarged)).
		Int("skipped", len(result.Skipped)).
		Msg("auto-discharge run complete")
	return result, nil
}

// evaluateOne handles a single encounter, converting panics into errors so
// the batch survives.
func (e *Evaluator) evaluateOne(ctx context.Context, id uint, result *RunResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log := logger.WithComponent("discharge")
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Uint("encounter_id", id).
				Msg("evaluation panic recovered")
			metrics.PanicsRecovered.WithLabelValues("discharge").Inc()
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	stable, reason, err := e.IsStable(ctx, id)
	if err != nil {
		return err
	}
	if !stable {
		result.Skipped = append(result.Skipped, id)
		result.Reasons[id] = reason
		return nil
	}

	if _, err := e.Discharge(ctx, id); err != nil {
		return err
	}
	if _, err := e.GeneratePlan(ctx, id); err != nil {
		return err
	}

	metrics.AutoDischargedTotal.Inc()
	result.AutoDischarged = append(result.AutoDischarged, id)
	return nil
}
