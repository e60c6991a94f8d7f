package store

import (
	"context"
	"errors"
	"time"

	"vitalflow/internal/models"
)

// Store errors
var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("conflicting state transition")
	ErrDuplicate = errors.New("record already exists")
)

// VitalsStore persists and reads time-ordered vitals readings
type VitalsStore interface {
	CreateVitals(ctx context.Context, v *models.VitalsReading) error
	// VitalsSince returns readings for the encounter with timestamp >= since,
	// newest first. A zero since means no lower bound; limit <= 0 means no limit.
	VitalsSince(ctx context.Context, encounterID uint, since time.Time, limit int) ([]models.VitalsReading, error)
}

// AlertStore persists alerts and supports resolution
type AlertStore interface {
	CreateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id uint) (*models.Alert, error)
	// AlertsSince returns alerts for the encounter created at or after since.
	// An empty severity matches all severities; a zero since means no bound.
	AlertsSince(ctx context.Context, encounterID uint, severity models.Severity, since time.Time) ([]models.Alert, error)
	// ResolveAlert flips resolved false -> true. Idempotent: resolving an
	// already-resolved alert is a no-op returning the current row.
	ResolveAlert(ctx context.Context, id uint, at time.Time) (*models.Alert, error)
}

// ExplanationStore upholds the at-most-one-explanation-per-alert invariant
type ExplanationStore interface {
	HasExplanation(ctx context.Context, alertID uint) (bool, error)
	// CreateExplanation is a conditional insert: ErrDuplicate if an
	// explanation already exists for the alert.
	CreateExplanation(ctx context.Context, e *models.AlertExplanation) error
	GetExplanation(ctx context.Context, alertID uint) (*models.AlertExplanation, error)
}

// EncounterStore manages the encounter lifecycle
type EncounterStore interface {
	CreateEncounter(ctx context.Context, e *models.Encounter) error
	GetEncounter(ctx context.Context, id uint) (*models.Encounter, error)
	// ListDischargeable returns active encounters not blocked from auto-discharge
	ListDischargeable(ctx context.Context) ([]models.Encounter, error)
	// DischargeEncounter atomically transitions active -> discharged and frees
	// the encounter's room. ErrConflict if the encounter is not active.
	DischargeEncounter(ctx context.Context, id uint, at time.Time) (*models.Encounter, error)
	SetAutoDischargeBlocked(ctx context.Context, id uint, blocked bool) error
}

// PatientStore reads demographics for enrichment context
type PatientStore interface {
	CreatePatient(ctx context.Context, p *models.Patient) error
	GetPatient(ctx context.Context, id uint) (*models.Patient, error)
}

// RoomStore allocates bed resources at admission
type RoomStore interface {
	CreateRoom(ctx context.Context, r *models.Room) error
	// FindFreeRoom returns the first unoccupied room in the department,
	// ordered by room number. ErrNotFound when the department is full.
	FindFreeRoom(ctx context.Context, department string) (*models.Room, error)
	GetRoom(ctx context.Context, id uint) (*models.Room, error)
	OccupyRoom(ctx context.Context, id uint) error
}

// DoctorStore assigns attending physicians
type DoctorStore interface {
	CreateDoctor(ctx context.Context, d *models.Doctor) error
	FirstDoctor(ctx context.Context) (*models.Doctor, error)
}

// PlanStore persists discharge plans and derived followups
type PlanStore interface {
	// CreateDischargePlan is a conditional insert: ErrDuplicate if a plan
	// already exists for the encounter.
	CreateDischargePlan(ctx context.Context, p *models.DischargePlan) error
	GetDischargePlan(ctx context.Context, encounterID uint) (*models.DischargePlan, error)
	CreateFollowup(ctx context.Context, f *models.FollowupAppointment) error
	ListFollowups(ctx context.Context, encounterID uint) ([]models.FollowupAppointment, error)
}

// Store is the full repository surface backed by the relational store
type Store interface {
	VitalsStore
	AlertStore
	ExplanationStore
	EncounterStore
	PatientStore
	RoomStore
	DoctorStore
	PlanStore
}
