package rules

import (
	"fmt"
	"strings"

	"vitalflow/internal/models"
)

// Candidate is a rule firing that has not yet been persisted as an alert
type Candidate struct {
	Type     models.AlertType
	Severity models.Severity
	Message  string
}

// Threshold constants. Rules and thresholds are fixed by clinical policy,
// not tenant-configurable.
const (
	TachycardiaHR       = 130
	TachycardiaSevereHR = 150
	BradycardiaHR       = 50
	HypoxiaSpO2         = 90
	HypertensionSys     = 180
	HypertensionDia     = 110
	HypotensionSys      = 90
	FeverTempC          = 38.5
	TachypneaRR         = 24
	BradypneaRR         = 8

	SepsisTempC = 38.5
	SepsisHR    = 100
	SepsisRR    = 20

	DistressSpO2 = 92
	DistressRR   = 24
)

// Evaluate runs every rule against a single reading and returns the
// candidates in rule-definition order. It is pure: no I/O, no cross-reading
// state, identical output for identical input. A nil field skips the rules
// that reference it. Compound rules fire alongside the independent rules
// they overlap with, never instead of them.
func Evaluate(r *models.VitalsReading) []Candidate {
	var out []Candidate

	if r.HRBpm != nil && *r.HRBpm > TachycardiaHR {
		severity := models.SeverityMedium
		if *r.HRBpm > TachycardiaSevereHR {
			severity = models.SeverityHigh
		}
		out = append(out, Candidate{
			Type:     models.AlertTachycardia,
			Severity: severity,
			Message:  fmt.Sprintf("HR %d bpm (> %d): Tachycardia suspected", *r.HRBpm, TachycardiaHR),
		})
	}

	if r.HRBpm != nil && *r.HRBpm < BradycardiaHR {
		out = append(out, Candidate{
			Type:     models.AlertBradycardia,
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("HR %d bpm (< %d): Bradycardia suspected", *r.HRBpm, BradycardiaHR),
		})
	}

	if r.SpO2Pct != nil && *r.SpO2Pct < HypoxiaSpO2 {
		out = append(out, Candidate{
			Type:     models.AlertHypoxia,
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("SpO2 %d%% (< %d%%): Hypoxia suspected", *r.SpO2Pct, HypoxiaSpO2),
		})
	}

	highSys := r.BPSystolic != nil && *r.BPSystolic > HypertensionSys
	highDia := r.BPDiastolic != nil && *r.BPDiastolic > HypertensionDia
	if highSys || highDia {
		var parts []string
		if highSys {
			parts = append(parts, fmt.Sprintf("Sys %d (> %d)", *r.BPSystolic, HypertensionSys))
		}
		if highDia {
			parts = append(parts, fmt.Sprintf("Dia %d (> %d)", *r.BPDiastolic, HypertensionDia))
		}
		out = append(out, Candidate{
			Type:     models.AlertHypertension,
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("BP %s: Hypertension suspected", strings.Join(parts, ", ")),
		})
	}

	if r.BPSystolic != nil && *r.BPSystolic < HypotensionSys {
		out = append(out, Candidate{
			Type:     models.AlertHypotension,
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("BP Sys %d (< %d): Hypotension suspected", *r.BPSystolic, HypotensionSys),
		})
	}

	if r.TempC != nil && *r.TempC > FeverTempC {
		out = append(out, Candidate{
			Type:     models.AlertFever,
			Severity: models.SeverityMedium,
			Message:  fmt.Sprintf("Temp %.1f C (> %.1f): Fever suspected", *r.TempC, FeverTempC),
		})
	}

	// Tachypnea and bradypnea are mutually exclusive on the same field
	if r.RespRateBpm != nil && *r.RespRateBpm > TachypneaRR {
		out = append(out, Candidate{
			Type:     models.AlertTachypnea,
			Severity: models.SeverityMedium,
			Message:  fmt.Sprintf("RR %d bpm (> %d): Tachypnea suspected", *r.RespRateBpm, TachypneaRR),
		})
	} else if r.RespRateBpm != nil && *r.RespRateBpm < BradypneaRR {
		out = append(out, Candidate{
			Type:     models.AlertBradypnea,
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("RR %d bpm (< %d): Bradypnea suspected", *r.RespRateBpm, BradypneaRR),
		})
	}

	// Compound: sepsis risk requires all three fields present
	if r.TempC != nil && r.HRBpm != nil && r.RespRateBpm != nil &&
		*r.TempC > SepsisTempC && *r.HRBpm > SepsisHR && *r.RespRateBpm > SepsisRR {
		out = append(out, Candidate{
			Type:     models.AlertSepsisRisk,
			Severity: models.SeverityCritical,
			Message: fmt.Sprintf("Temp %.1f C, HR %d bpm, RR %d bpm: Sepsis risk pattern",
				*r.TempC, *r.HRBpm, *r.RespRateBpm),
		})
	}

	// Compound: respiratory distress
	if r.SpO2Pct != nil && r.RespRateBpm != nil &&
		*r.SpO2Pct < DistressSpO2 && *r.RespRateBpm > DistressRR {
		out = append(out, Candidate{
			Type:     models.AlertRespiratoryDistress,
			Severity: models.SeverityCritical,
			Message: fmt.Sprintf("SpO2 %d%%, RR %d bpm: Respiratory distress pattern",
				*r.SpO2Pct, *r.RespRateBpm),
		})
	}

	return out
}
