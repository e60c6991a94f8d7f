package models

import (
	"time"
)

// AlertEvent is the wire payload published to the alerts topic when an alert
// is persisted. Consumers must treat delivery as at-least-once and refetch
// the alert by ID before acting.
type AlertEvent struct {
	ID          uint      `json:"id"`
	PatientID   uint      `json:"patient_id"`
	EncounterID uint      `json:"encounter_id"`
	Type        AlertType `json:"type"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewAlertEvent builds the event payload for a persisted alert
func NewAlertEvent(a *Alert) *AlertEvent {
	return &AlertEvent{
		ID:          a.ID,
		PatientID:   a.PatientID,
		EncounterID: a.EncounterID,
		Type:        a.Type,
		Severity:    a.Severity,
		Message:     a.Message,
		CreatedAt:   a.CreatedAt,
	}
}
