package enrich

import (
	"context"
	"fmt"

	"vitalflow/internal/models"
)

// VitalsSnapshot is one recent reading compacted for enrichment context.
// Nil fields were not reported by the device.
type VitalsSnapshot struct {
	HRBpm   *int     `json:"hr,omitempty"`
	SpO2Pct *int     `json:"spo2,omitempty"`
	BP      string   `json:"bp,omitempty"`
	TempC   *float64 `json:"temp,omitempty"`
}

// Snapshot compacts a stored reading into enrichment context
func Snapshot(v *models.VitalsReading) VitalsSnapshot {
	s := VitalsSnapshot{
		HRBpm:   v.HRBpm,
		SpO2Pct: v.SpO2Pct,
		TempC:   v.TempC,
	}
	if v.BPSystolic != nil && v.BPDiastolic != nil {
		s.BP = fmt.Sprintf("%d/%d", *v.BPSystolic, *v.BPDiastolic)
	}
	return s
}

// AlertContext is the bounded input for alert explanation
type AlertContext struct {
	AlertType    string           `json:"alert_type"`
	Severity     string           `json:"severity"`
	Message      string           `json:"message"`
	PatientAge   int              `json:"patient_age"`
	Gender       string           `json:"gender"`
	RecentVitals []VitalsSnapshot `json:"recent_vitals"`
}

// Explanation is the structured enrichment output for an alert
type Explanation struct {
	Summary          string   `json:"summary"`
	RiskLevel        string   `json:"risk_level"`
	SuggestedChecks  []string `json:"suggested_checks"`
	SuggestedActions []string `json:"suggested_actions"`
}

// PlanContext is the bounded input for discharge-plan generation
type PlanContext struct {
	PatientAge   int              `json:"patient_age"`
	Gender       string           `json:"gender"`
	AdmittedAt   string           `json:"admitted_at"`
	DischargedAt string           `json:"discharged_at,omitempty"`
	Department   string           `json:"department"`
	RecentVitals []VitalsSnapshot `json:"vitals_summary"`
	AlertCount   int              `json:"alerts_count"`
}

// Plan is the structured discharge-plan output
type Plan struct {
	DischargeSummary     string              `json:"discharge_summary"`
	HomeCareInstructions []string            `json:"home_care_instructions"`
	RecommendedMeds      []models.Medication `json:"recommended_meds"`
	FollowupDays         int                 `json:"followup_days"`
}

// Explainer generates a human-readable risk explanation for an alert.
// The output is advisory: a returned error means no explanation this time,
// never that the alert itself is invalid.
type Explainer interface {
	ExplainAlert(ctx context.Context, ac *AlertContext) (*Explanation, error)
}

// Planner generates a discharge plan from encounter context
type Planner interface {
	PlanDischarge(ctx context.Context, pc *PlanContext) (*Plan, error)
}

// FallbackExplanation is the fixed payload used when the backend degrades
func FallbackExplanation() *Explanation {
	return &Explanation{
		Summary:          "Error analyzing alert. Please check vitals manually.",
		RiskLevel:        "Unknown",
		SuggestedChecks:  []string{"Check patient status manually"},
		SuggestedActions: []string{"Verify alert validity"},
	}
}

// FallbackPlan is the fixed payload used when the backend degrades
func FallbackPlan() *Plan {
	return &Plan{
		DischargeSummary:     "Error generating plan. Please review manually.",
		HomeCareInstructions: []string{"Follow standard discharge procedures."},
		RecommendedMeds:      []models.Medication{},
		FollowupDays:         7,
	}
}
