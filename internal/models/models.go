package models

import (
	"time"
)

// Severity represents alert severity levels
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity level is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// AlertType identifies which rule produced an alert
type AlertType string

const (
	AlertTachycardia         AlertType = "tachycardia"
	AlertBradycardia         AlertType = "bradycardia"
	AlertHypoxia             AlertType = "hypoxia"
	AlertHypertension        AlertType = "hypertension"
	AlertHypotension         AlertType = "hypotension"
	AlertFever               AlertType = "fever"
	AlertTachypnea           AlertType = "tachypnea"
	AlertBradypnea           AlertType = "bradypnea"
	AlertSepsisRisk          AlertType = "sepsis_risk"
	AlertRespiratoryDistress AlertType = "respiratory_distress"
)

// EncounterStatus is the lifecycle state of a hospital stay
type EncounterStatus string

const (
	EncounterActive     EncounterStatus = "active"
	EncounterDischarged EncounterStatus = "discharged"
)

// Patient holds demographics used for enrichment context
type Patient struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `json:"name"`
	BirthYear int    `json:"birth_year"`
	Gender    string `json:"gender"`
	CreatedAt time.Time

	Encounters []Encounter `gorm:"foreignKey:PatientID"`
}

// Doctor is the attending physician assigned at admission
type Doctor struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	CreatedAt time.Time
}

// Room is a physical bed resource, freed when its encounter is discharged
type Room struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	RoomNumber string `gorm:"uniqueIndex" json:"room_number"`
	Department string `gorm:"index" json:"department"`
	Occupied   bool   `json:"occupied"`
	CreatedAt  time.Time
}

// Encounter is a single hospital stay. Status transitions active -> discharged
// exactly once; AutoDischargeBlocked is a manual override gate set by staff.
type Encounter struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	PatientID            uint            `gorm:"index" json:"patient_id"`
	DoctorID             uint            `json:"doctor_id"`
	RoomID               uint            `json:"room_id"`
	Status               EncounterStatus `gorm:"type:varchar(16);index" json:"status"`
	AutoDischargeBlocked bool            `json:"auto_discharge_blocked"`
	AdmittedAt           time.Time       `json:"admitted_at"`
	DischargedAt         *time.Time      `json:"discharged_at,omitempty"`

	Vitals []VitalsReading `gorm:"foreignKey:EncounterID"`
	Alerts []Alert         `gorm:"foreignKey:EncounterID"`
}

// Alert is a persisted record of a rule firing against a vitals reading.
// Created exactly once per rule firing; mutated only by resolution.
type Alert struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	PatientID      uint       `gorm:"index" json:"patient_id"`
	EncounterID    uint       `gorm:"index" json:"encounter_id"`
	Type           AlertType  `gorm:"type:varchar(32)" json:"type"`
	Severity       Severity   `gorm:"type:varchar(16);index" json:"severity"`
	Message        string     `json:"message"`
	EventTimestamp time.Time  `json:"event_timestamp"`
	CreatedAt      time.Time  `json:"created_at"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`

	Explanation *AlertExplanation `gorm:"foreignKey:AlertID"`
}

// AlertExplanation is the enrichment output, at most one per alert. The
// unique index on AlertID is the idempotency backstop under at-least-once
// delivery.
type AlertExplanation struct {
	ID               uint     `gorm:"primaryKey" json:"id"`
	AlertID          uint     `gorm:"uniqueIndex" json:"alert_id"`
	Summary          string   `json:"summary"`
	RiskLevel        string   `json:"risk_level"`
	SuggestedChecks  []string `gorm:"serializer:json" json:"suggested_checks"`
	SuggestedActions []string `gorm:"serializer:json" json:"suggested_actions"`
	CreatedAt        time.Time
}

// Medication is one recommended prescription line in a discharge plan
type Medication struct {
	Name     string `json:"name"`
	Dose     string `json:"dose"`
	Duration string `json:"duration"`
}

// DischargePlan is generated at most once per encounter, at or after discharge
type DischargePlan struct {
	ID                   uint         `gorm:"primaryKey" json:"id"`
	EncounterID          uint         `gorm:"uniqueIndex" json:"encounter_id"`
	PatientID            uint         `json:"patient_id"`
	Summary              string       `json:"summary"`
	HomeCareInstructions []string     `gorm:"serializer:json" json:"home_care_instructions"`
	RecommendedMeds      []Medication `gorm:"serializer:json" json:"recommended_meds"`
	FollowupDays         int          `json:"followup_days"`
	CreatedAt            time.Time
}

// FollowupAppointment is derived from the discharge plan's followup_days
type FollowupAppointment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EncounterID  uint      `gorm:"index" json:"encounter_id"`
	PatientID    uint      `json:"patient_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Status       string    `gorm:"type:varchar(16)" json:"status"`
	CreatedAt    time.Time
}
