package models

import (
	"errors"
	"strings"
	"time"
)

// VitalsReading is an immutable snapshot from a bedside device. Optional
// fields are pointers: a nil field means the device did not report it, which
// is not itself an anomaly.
type VitalsReading struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PatientID   uint      `gorm:"index" json:"patient_id"`
	EncounterID uint      `gorm:"index" json:"encounter_id"`
	Timestamp   time.Time `gorm:"index" json:"timestamp"`
	HRBpm       *int      `json:"hr_bpm,omitempty"`
	SpO2Pct     *int      `json:"spo2_pct,omitempty"`
	RespRateBpm *int      `json:"resp_rate_bpm,omitempty"`
	BPSystolic  *int      `json:"bp_systolic,omitempty"`
	BPDiastolic *int      `json:"bp_diastolic,omitempty"`
	TempC       *float64  `json:"temp_c,omitempty"`
	DeviceFlags []string  `gorm:"serializer:json" json:"device_flags,omitempty"`
	CreatedAt   time.Time `json:"-"`
}

// Validation errors
var (
	ErrEmptyPatientID   = errors.New("patient ID cannot be zero")
	ErrEmptyEncounterID = errors.New("encounter ID cannot be zero")
	ErrZeroTimestamp    = errors.New("timestamp cannot be zero")
	ErrFutureTimestamp  = errors.New("timestamp cannot be in the future")
	ErrInvalidTimestamp = errors.New("invalid timestamp format")
	ErrNoMeasurements   = errors.New("reading carries no measurements")
)

// Validate checks if the reading has all required fields and valid values
func (v *VitalsReading) Validate() error {
	if v.PatientID == 0 {
		return ErrEmptyPatientID
	}

	if v.EncounterID == 0 {
		return ErrEmptyEncounterID
	}

	if v.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}

	if v.Timestamp.After(time.Now().Add(time.Minute)) {
		return ErrFutureTimestamp
	}

	if v.HRBpm == nil && v.SpO2Pct == nil && v.RespRateBpm == nil &&
		v.BPSystolic == nil && v.BPDiastolic == nil && v.TempC == nil {
		return ErrNoMeasurements
	}

	return nil
}

// SupportedTimestampFormats lists formats we attempt to parse
var SupportedTimestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp attempts to parse a timestamp string into time.Time
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)

	for _, format := range SupportedTimestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, ErrInvalidTimestamp
}
