package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalflow/internal/models"
)

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

func reading() *models.VitalsReading {
	return &models.VitalsReading{
		PatientID:   1,
		EncounterID: 1,
		Timestamp:   time.Now().UTC(),
	}
}

func types(cs []Candidate) []models.AlertType {
	out := make([]models.AlertType, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Type)
	}
	return out
}

func TestEvaluateEmptyReading(t *testing.T) {
	assert.Empty(t, Evaluate(reading()))
}

func TestEvaluateDeterministic(t *testing.T) {
	r := reading()
	r.HRBpm = intp(140)
	r.SpO2Pct = intp(88)
	r.RespRateBpm = intp(26)
	r.TempC = floatp(39.0)

	first := Evaluate(r)
	second := Evaluate(r)
	assert.Equal(t, first, second)
}

func TestTachycardiaSeverityEscalation(t *testing.T) {
	r := reading()
	r.HRBpm = intp(140)
	got := Evaluate(r)
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertTachycardia, got[0].Type)
	assert.Equal(t, models.SeverityMedium, got[0].Severity)
	assert.Equal(t, "HR 140 bpm (> 130): Tachycardia suspected", got[0].Message)

	r.HRBpm = intp(151)
	got = Evaluate(r)
	require.Len(t, got, 1)
	assert.Equal(t, models.SeverityHigh, got[0].Severity)
}

func TestThresholdsAreExclusive(t *testing.T) {
	r := reading()
	r.HRBpm = intp(130)
	r.SpO2Pct = intp(90)
	r.RespRateBpm = intp(24)
	r.TempC = floatp(38.5)
	r.BPSystolic = intp(180)
	r.BPDiastolic = intp(110)

	assert.Empty(t, Evaluate(r), "boundary values must not fire")
}

func TestBradycardia(t *testing.T) {
	r := reading()
	r.HRBpm = intp(49)
	got := Evaluate(r)
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertBradycardia, got[0].Type)
	assert.Equal(t, models.SeverityHigh, got[0].Severity)
}

func TestHypoxia(t *testing.T) {
	r := reading()
	r.SpO2Pct = intp(89)
	got := Evaluate(r)
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertHypoxia, got[0].Type)
	assert.Equal(t, "SpO2 89% (< 90%): Hypoxia suspected", got[0].Message)
}

func TestHypertensionCompositeMessage(t *testing.T) {
	r := reading()
	r.BPSystolic = intp(185)
	got := Evaluate(r)
	require.Len(t, got, 1)
	assert.Equal(t, "BP Sys 185 (> 180): Hypertension suspected", got[0].Message)

	r.BPDiastolic = intp(115)
	got = Evaluate(r)
	require.Len(t, got, 1)
	assert.Equal(t, "BP Sys 185 (> 180), Dia 115 (> 110): Hypertension suspected", got[0].Message)

	r.BPSystolic = intp(120)
	got = Evaluate(r)
	require.Len(t, got, 1)
	assert.Equal(t, "BP Dia 115 (> 110): Hypertension suspected", got[0].Message)
}

func TestHypotension(t *testing.T) {
	r := reading()
	r.BPSystolic = intp(85)
	r.BPDiastolic = intp(60)
	got := Evaluate(r)
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertHypotension, got[0].Type)
}

func TestRespRateMutuallyExclusive(t *testing.T) {
	r := reading()
	r.RespRateBpm = intp(7)
	got := Evaluate(r)
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertBradypnea, got[0].Type)

	r.RespRateBpm = intp(25)
	got = Evaluate(r)
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertTachypnea, got[0].Type)
}

func TestSepsisRiskFiresAlongsideSingles(t *testing.T) {
	// Fever + borderline HR + elevated RR matches the sepsis pattern while
	// HR 110 stays under the tachycardia threshold.
	r := reading()
	r.TempC = floatp(39.0)
	r.HRBpm = intp(110)
	r.RespRateBpm = intp(25)

	got := Evaluate(r)
	assert.Equal(t, []models.AlertType{
		models.AlertFever,
		models.AlertTachypnea,
		models.AlertSepsisRisk,
	}, types(got))

	for _, c := range got {
		if c.Type == models.AlertSepsisRisk {
			assert.Equal(t, models.SeverityCritical, c.Severity)
		}
	}
}

func TestSepsisRiskRequiresAllFields(t *testing.T) {
	r := reading()
	r.TempC = floatp(39.0)
	r.HRBpm = intp(110)
	// RR missing: only fever should fire
	got := Evaluate(r)
	assert.Equal(t, []models.AlertType{models.AlertFever}, types(got))
}

func TestRespiratoryDistress(t *testing.T) {
	r := reading()
	r.SpO2Pct = intp(91)
	r.RespRateBpm = intp(25)
	got := Evaluate(r)
	assert.Equal(t, []models.AlertType{
		models.AlertTachypnea,
		models.AlertRespiratoryDistress,
	}, types(got))

	// Dropping SpO2 under the hypoxia threshold adds the independent rule
	// without suppressing the compound one.
	r.SpO2Pct = intp(88)
	got = Evaluate(r)
	assert.Equal(t, []models.AlertType{
		models.AlertHypoxia,
		models.AlertTachypnea,
		models.AlertRespiratoryDistress,
	}, types(got))
}
