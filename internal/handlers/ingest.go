package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"vitalflow/internal/alerts"
	"vitalflow/internal/bus"
	"vitalflow/internal/logger"
	"vitalflow/internal/metrics"
	"vitalflow/internal/models"
	"vitalflow/internal/store"
)

const maxIngestBody = 1 * 1024 * 1024 // 1MB

// VitalsInput is the inbound payload for a reading, with a string timestamp
// for flexible parsing
type VitalsInput struct {
	PatientID   uint     `json:"patient_id"`
	EncounterID uint     `json:"encounter_id"`
	Timestamp   string   `json:"timestamp"`
	HRBpm       *int     `json:"hr_bpm,omitempty"`
	SpO2Pct     *int     `json:"spo2_pct,omitempty"`
	RespRateBpm *int     `json:"resp_rate_bpm,omitempty"`
	BPSystolic  *int     `json:"bp_systolic,omitempty"`
	BPDiastolic *int     `json:"bp_diastolic,omitempty"`
	TempC       *float64 `json:"temp_c,omitempty"`
	DeviceFlags []string `json:"device_flags,omitempty"`
}

// IngestResponse is returned to the device after a reading is stored
type IngestResponse struct {
	ID            uint   `json:"id"`
	Status        string `json:"status"`
	AlertsCreated int    `json:"alerts_created"`
}

// IngestHandler accepts vitals readings. The write of the reading is
// care-critical; rule evaluation and event publication run after it and can
// never fail the request.
type IngestHandler struct {
	store       store.VitalsStore
	manager     *alerts.Manager
	pub         bus.Publisher
	vitalsTopic string
}

// NewIngestHandler creates the vitals ingest handler. Stored readings are
// announced on the vitals topic for downstream consumers.
func NewIngestHandler(s store.VitalsStore, m *alerts.Manager, pub bus.Publisher, vitalsTopic string) *IngestHandler {
	return &IngestHandler{store: s, manager: m, pub: pub, vitalsTopic: vitalsTopic}
}

// ServeHTTP handles POST /vitals
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("ingest")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && contentType != "" {
		writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBody)

	var input VitalsInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		metrics.IngestReadingsTotal.WithLabelValues("rejected").Inc()
		metrics.IngestValidationErrors.WithLabelValues("malformed_json").Inc()
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	ts, err := models.ParseTimestamp(input.Timestamp)
	if err != nil {
		metrics.IngestReadingsTotal.WithLabelValues("rejected").Inc()
		metrics.IngestValidationErrors.WithLabelValues("invalid_timestamp").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reading := models.VitalsReading{
		PatientID:   input.PatientID,
		EncounterID: input.EncounterID,
		Timestamp:   ts,
		HRBpm:       input.HRBpm,
		SpO2Pct:     input.SpO2Pct,
		RespRateBpm: input.RespRateBpm,
		BPSystolic:  input.BPSystolic,
		BPDiastolic: input.BPDiastolic,
		TempC:       input.TempC,
		DeviceFlags: input.DeviceFlags,
	}

	if err := reading.Validate(); err != nil {
		metrics.IngestReadingsTotal.WithLabelValues("rejected").Inc()
		metrics.IngestValidationErrors.WithLabelValues(validationErrorType(err)).Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateVitals(r.Context(), &reading); err != nil {
		log.Error().Err(err).Uint("encounter_id", reading.EncounterID).Msg("vitals write failed")
		metrics.IngestReadingsTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusInternalServerError, "failed to store reading")
		return
	}

	metrics.IngestReadingsTotal.WithLabelValues("accepted").Inc()

	// Fire-and-forget announcement of the stored reading
	key := fmt.Sprintf("%d", reading.EncounterID)
	if err := h.pub.Publish(r.Context(), h.vitalsTopic, key, &reading); err != nil {
		log.Warn().Err(err).Uint("encounter_id", reading.EncounterID).Msg("vitals publish failed")
	}

	// Synchronous rule evaluation; alert persistence/publication problems
	// are logged inside the manager and never fail the ingest.
	created := h.manager.OnReading(r.Context(), &reading)

	writeJSON(w, http.StatusCreated, IngestResponse{
		ID:            reading.ID,
		Status:        "received",
		AlertsCreated: len(created),
	})
}

func validationErrorType(err error) string {
	switch {
	case errors.Is(err, models.ErrEmptyPatientID):
		return "missing_patient"
	case errors.Is(err, models.ErrEmptyEncounterID):
		return "missing_encounter"
	case errors.Is(err, models.ErrZeroTimestamp), errors.Is(err, models.ErrFutureTimestamp):
		return "bad_timestamp"
	case errors.Is(err, models.ErrNoMeasurements):
		return "no_measurements"
	default:
		return "other"
	}
}
