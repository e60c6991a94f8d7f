package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"vitalflow/internal/admission"
	"vitalflow/internal/alerts"
	"vitalflow/internal/discharge"
	"vitalflow/internal/logger"
	"vitalflow/internal/store"
)

// API bundles the non-ingest HTTP surface
type API struct {
	store     store.Store
	manager   *alerts.Manager
	evaluator *discharge.Evaluator
	admitter  *admission.Service
}

// NewAPI creates the API handler set
func NewAPI(s store.Store, m *alerts.Manager, e *discharge.Evaluator, a *admission.Service) *API {
	return &API{store: s, manager: m, evaluator: e, admitter: a}
}

// Register attaches routes to the mux
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /admissions", a.admit)
	mux.HandleFunc("GET /vitals", a.listVitals)
	mux.HandleFunc("GET /alerts", a.listAlerts)
	mux.HandleFunc("POST /alerts/{id}/resolve", a.resolveAlert)
	mux.HandleFunc("GET /alerts/{id}/explanation", a.getExplanation)
	mux.HandleFunc("POST /discharge/auto/run", a.runAutoDischarge)
	mux.HandleFunc("GET /encounters/{id}/discharge_plan", a.getDischargePlan)
	mux.HandleFunc("POST /encounters/{id}/block_discharge", a.blockDischarge)
}

func (a *API) admit(w http.ResponseWriter, r *http.Request) {
	var req admission.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	result, err := a.admitter.Admit(r.Context(), &req)
	if err != nil {
		if errors.Is(err, admission.ErrNoRoom) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (a *API) listVitals(w http.ResponseWriter, r *http.Request) {
	encounterID, err := queryUint(r, "encounter_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "encounter_id is required")
		return
	}

	var since time.Time
	if mins, err := queryUint(r, "last_minutes"); err == nil && mins > 0 {
		since = time.Now().UTC().Add(-time.Duration(mins) * time.Minute)
	}

	limit := 0
	if n, err := queryUint(r, "limit"); err == nil {
		limit = int(n)
	}

	readings, err := a.store.VitalsSince(r.Context(), encounterID, since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read vitals")
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (a *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	encounterID, err := queryUint(r, "encounter_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "encounter_id is required")
		return
	}

	alertList, err := a.store.AlertsSince(r.Context(), encounterID, "", time.Time{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read alerts")
		return
	}
	writeJSON(w, http.StatusOK, alertList)
}

func (a *API) resolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	alert, err := a.manager.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (a *API) getExplanation(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	exp, err := a.store.GetExplanation(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Enrichment is best-effort; absence means not yet available
			writeError(w, http.StatusNotFound, "explanation not yet available")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read explanation")
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (a *API) runAutoDischarge(w http.ResponseWriter, r *http.Request) {
	result, err := a.evaluator.RunAutoDischarge(r.Context())
	if err != nil {
		log := logger.WithComponent("api")
		log.Error().Err(err).Msg("auto-discharge run failed")
		writeError(w, http.StatusInternalServerError, "auto-discharge run failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) getDischargePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid encounter id")
		return
	}

	plan, err := a.store.GetDischargePlan(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "discharge plan not yet available")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read discharge plan")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (a *API) blockDischarge(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid encounter id")
		return
	}

	var body struct {
		Blocked bool `json:"blocked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if err := a.store.SetAutoDischargeBlocked(r.Context(), id, body.Blocked); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "encounter not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update encounter")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"encounter_id": id, "auto_discharge_blocked": body.Blocked})
}

// ---- helpers ----

func pathUint(r *http.Request, name string) (uint, error) {
	n, err := strconv.ParseUint(r.PathValue(name), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(n), nil
}

func queryUint(r *http.Request, name string) (uint, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, errors.New("missing query parameter")
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(n), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
