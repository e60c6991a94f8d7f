package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vitalflow/internal/logger"
	"vitalflow/internal/models"
	"vitalflow/internal/store"
)

// Departments
const (
	DepartmentICU     = "ICU"
	DepartmentGeneral = "General"
)

// icuKeywords trigger ICU triage when present in a reported symptom
var icuKeywords = []string{
	"chest pain",
	"severe",
	"unconscious",
	"respiratory distress",
	"shortness of breath",
}

// ErrNoRoom is returned when no room can be allocated, including fallbacks
var ErrNoRoom = errors.New("no rooms available")

// Request describes an admission
type Request struct {
	Name                string   `json:"name"`
	Age                 int      `json:"age"`
	Gender              string   `json:"gender"`
	Symptoms            []string `json:"symptoms"`
	SeverityHint        string   `json:"severity_hint,omitempty"`
	PreferredDepartment string   `json:"preferred_department,omitempty"`
}

// Result reports the admission outcome
type Result struct {
	EncounterID    uint   `json:"encounter_id"`
	PatientID      uint   `json:"patient_id"`
	RoomID         uint   `json:"room_id"`
	RoomNumber     string `json:"room_number"`
	Department     string `json:"department"`
	TriageDecision string `json:"triage_decision"`
	DoctorID       uint   `json:"assigned_doctor_id,omitempty"`
	Notes          string `json:"notes"`
}

// Store is the repository surface admission needs
type Store interface {
	CreatePatient(ctx context.Context, p *models.Patient) error
	FindFreeRoom(ctx context.Context, department string) (*models.Room, error)
	OccupyRoom(ctx context.Context, id uint) error
	FirstDoctor(ctx context.Context) (*models.Doctor, error)
	CreateEncounter(ctx context.Context, e *models.Encounter) error
}

// Service performs deterministic triage and room allocation at admission
type Service struct {
	store Store
	now   func() time.Time
}

// NewService wires the admission service
func NewService(s Store) *Service {
	return &Service{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// DecideDepartment applies the triage rules: ICU keywords or a high severity
// hint win over the stated preference; otherwise General.
func DecideDepartment(req *Request) string {
	for _, symptom := range req.Symptoms {
		lowered := strings.ToLower(symptom)
		for _, kw := range icuKeywords {
			if strings.Contains(lowered, kw) {
				return DepartmentICU
			}
		}
	}

	if req.SeverityHint == "high" {
		return DepartmentICU
	}

	if req.PreferredDepartment != "" {
		return req.PreferredDepartment
	}

	return DepartmentGeneral
}

// allocateRoom finds the first free room in the department, falling back
// from ICU to General when ICU is full (never the reverse).
func (s *Service) allocateRoom(ctx context.Context, department string) (*models.Room, error) {
	room, err := s.store.FindFreeRoom(ctx, department)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if department == DepartmentICU {
		room, err = s.store.FindFreeRoom(ctx, DepartmentGeneral)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w in %s", ErrNoRoom, department)
}

// Admit creates the patient, allocates a room, assigns a doctor, and opens
// an active encounter.
func (s *Service) Admit(ctx context.Context, req *Request) (*Result, error) {
	log := logger.WithComponent("admission")

	if req.Name == "" {
		return nil, errors.New("patient name is required")
	}
	if req.Age <= 0 {
		return nil, errors.New("patient age is required")
	}

	gender := req.Gender
	if gender == "" {
		gender = "Unknown"
	}
	patient := &models.Patient{
		Name:      req.Name,
		BirthYear: s.now().Year() - req.Age,
		Gender:    gender,
	}
	if err := s.store.CreatePatient(ctx, patient); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}

	department := DecideDepartment(req)
	room, err := s.allocateRoom(ctx, department)
	if err != nil {
		return nil, err
	}
	if err := s.store.OccupyRoom(ctx, room.ID); err != nil {
		return nil, fmt.Errorf("occupy room %s: %w", room.RoomNumber, err)
	}

	var doctorID uint
	if doctor, err := s.store.FirstDoctor(ctx); err == nil {
		doctorID = doctor.ID
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	encounter := &models.Encounter{
		PatientID:  patient.ID,
		DoctorID:   doctorID,
		RoomID:     room.ID,
		Status:     models.EncounterActive,
		AdmittedAt: s.now(),
	}
	if err := s.store.CreateEncounter(ctx, encounter); err != nil {
		return nil, fmt.Errorf("create encounter: %w", err)
	}

	log.Info().
		Uint("encounter_id", encounter.ID).
		Uint("patient_id", patient.ID).
		Str("department", room.Department).
		Str("triage", department).
		Msg("patient admitted")

	reason := "Checkup"
	if len(req.Symptoms) > 0 {
		reason = req.Symptoms[0]
	}

	return &Result{
		EncounterID:    encounter.ID,
		PatientID:      patient.ID,
		RoomID:         room.ID,
		RoomNumber:     room.RoomNumber,
		Department:     room.Department,
		TriageDecision: department,
		DoctorID:       doctorID,
		Notes:          fmt.Sprintf("Admitted to %s (Triage: %s). Reason: %s", room.Department, department, reason),
	}, nil
}
