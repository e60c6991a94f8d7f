package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"vitalflow/internal/bus"
	"vitalflow/internal/enrich"
	"vitalflow/internal/models"
	"vitalflow/internal/store"
)

type stubExplainer struct {
	fn    func(ctx context.Context, ac *enrich.AlertContext) (*enrich.Explanation, error)
	calls int
	last  *enrich.AlertContext
}

func (s *stubExplainer) ExplainAlert(ctx context.Context, ac *enrich.AlertContext) (*enrich.Explanation, error) {
	s.calls++
	s.last = ac
	return s.fn(ctx, ac)
}

func newTestStore(t *testing.T) *store.Gorm {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	g, err := store.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
	require.NoError(t, err)
	return g
}

func intp(v int) *int { return &v }

func seedAlert(t *testing.T, st *store.Gorm) *models.Alert {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.CreatePatient(ctx, &models.Patient{
		ID:        3,
		Name:      "Asha Verma",
		BirthYear: 1960,
		Gender:    "Female",
	}))

	alert := &models.Alert{
		PatientID:   3,
		EncounterID: 7,
		Type:        models.AlertTachycardia,
		Severity:    models.SeverityMedium,
		Message:     "HR 140 bpm (> 130): Tachycardia suspected",
	}
	require.NoError(t, st.CreateAlert(ctx, alert))
	return alert
}

func eventMessage(t *testing.T, alert *models.Alert) bus.Message {
	t.Helper()
	data, err := json.Marshal(models.NewAlertEvent(alert))
	require.NoError(t, err)
	return bus.Message{Topic: "alerts", Key: []byte("7"), Value: data}
}

func newTestWorker(st *store.Gorm, ex enrich.Explainer) *Worker {
	fixed := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	return NewWorker(Config{
		Store:         st,
		Explainer:     ex,
		Topic:         "alerts",
		Group:         "alert_copilot_group",
		EnrichTimeout: time.Second,
	}).WithClock(func() time.Time { return fixed })
}

func TestHandleEnrichesAlert(t *testing.T) {
	st := newTestStore(t)
	ex := &stubExplainer{fn: func(ctx context.Context, ac *enrich.AlertContext) (*enrich.Explanation, error) {
		return &enrich.Explanation{
			Summary:          "Sustained tachycardia after mobilization",
			RiskLevel:        "Moderate",
			SuggestedChecks:  []string{"12-lead ECG"},
			SuggestedActions: []string{"Notify attending physician"},
		}, nil
	}}
	w := newTestWorker(st, ex)

	alert := seedAlert(t, st)

	// A recent reading inside the context window plus a stale one outside it
	require.NoError(t, st.CreateVitals(context.Background(), &models.VitalsReading{
		PatientID:   3,
		EncounterID: 7,
		Timestamp:   time.Date(2026, 8, 27, 11, 45, 0, 0, time.UTC),
		HRBpm:       intp(142),
		BPSystolic:  intp(120),
		BPDiastolic: intp(80),
	}))
	require.NoError(t, st.CreateVitals(context.Background(), &models.VitalsReading{
		PatientID:   3,
		EncounterID: 7,
		Timestamp:   time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
		HRBpm:       intp(90),
	}))

	require.NoError(t, w.Handle(context.Background(), eventMessage(t, alert)))

	exp, err := st.GetExplanation(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sustained tachycardia after mobilization", exp.Summary)
	assert.Equal(t, "Moderate", exp.RiskLevel)
	assert.Equal(t, []string{"12-lead ECG"}, exp.SuggestedChecks)

	require.NotNil(t, ex.last)
	assert.Equal(t, "tachycardia", ex.last.AlertType)
	assert.Equal(t, 66, ex.last.PatientAge)
	assert.Equal(t, "Female", ex.last.Gender)
	require.Len(t, ex.last.RecentVitals, 1, "stale reading must stay out of the context window")
	assert.Equal(t, "120/80", ex.last.RecentVitals[0].BP)

	assert.Equal(t, Stats{Processed: 1}, w.Stats())
}

func TestHandleDuplicateDeliveryIsNoop(t *testing.T) {
	st := newTestStore(t)
	ex := &stubExplainer{fn: func(ctx context.Context, ac *enrich.AlertContext) (*enrich.Explanation, error) {
		return &enrich.Explanation{Summary: "first delivery", RiskLevel: "Low"}, nil
	}}
	w := newTestWorker(st, ex)

	alert := seedAlert(t, st)
	msg := eventMessage(t, alert)

	require.NoError(t, w.Handle(context.Background(), msg))
	require.NoError(t, w.Handle(context.Background(), msg))

	assert.Equal(t, 1, ex.calls, "redelivery must not reach the explainer")

	exp, err := st.GetExplanation(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "first delivery", exp.Summary)
}

func TestHandleMissingAlertDiscarded(t *testing.T) {
	st := newTestStore(t)
	ex := &stubExplainer{fn: func(ctx context.Context, ac *enrich.AlertContext) (*enrich.Explanation, error) {
		t.Fatal("explainer must not be called")
		return nil, nil
	}}
	w := newTestWorker(st, ex)

	msg := eventMessage(t, &models.Alert{ID: 9999, EncounterID: 7})
	assert.NoError(t, w.Handle(context.Background(), msg))
	assert.Equal(t, Stats{Failed: 1}, w.Stats())
}

func TestHandleMalformedEventDiscarded(t *testing.T) {
	st := newTestStore(t)
	w := newTestWorker(st, &stubExplainer{})

	assert.NoError(t, w.Handle(context.Background(), bus.Message{Value: []byte("not json")}))
	assert.NoError(t, w.Handle(context.Background(), bus.Message{Value: []byte(`{"id":0}`)}))
	assert.Equal(t, Stats{Failed: 2}, w.Stats())
}

func TestHandleExplainerErrorLeavesAlertUnexplained(t *testing.T) {
	st := newTestStore(t)
	ex := &stubExplainer{fn: func(ctx context.Context, ac *enrich.AlertContext) (*enrich.Explanation, error) {
		return nil, context.DeadlineExceeded
	}}
	w := newTestWorker(st, ex)

	alert := seedAlert(t, st)

	// No error surfaces: the message is consumed and the alert stays bare
	require.NoError(t, w.Handle(context.Background(), eventMessage(t, alert)))

	has, err := st.HasExplanation(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, Stats{Failed: 1}, w.Stats())
}

func TestHandleRecoversFromPanic(t *testing.T) {
	st := newTestStore(t)
	ex := &stubExplainer{fn: func(ctx context.Context, ac *enrich.AlertContext) (*enrich.Explanation, error) {
		panic("explainer exploded")
	}}
	w := newTestWorker(st, ex)

	alert := seedAlert(t, st)
	assert.NoError(t, w.Handle(context.Background(), eventMessage(t, alert)))
	assert.Equal(t, Stats{Failed: 1}, w.Stats())
}

func TestRunConsumesFromBus(t *testing.T) {
	st := newTestStore(t)

	enriched := make(chan struct{})
	ex := &stubExplainer{fn: func(ctx context.Context, ac *enrich.AlertContext) (*enrich.Explanation, error) {
		defer close(enriched)
		return &enrich.Explanation{Summary: "from the bus", RiskLevel: "Low"}, nil
	}}
	w := newTestWorker(st, ex)

	alert := seedAlert(t, st)

	mem := bus.NewMemory()
	mem.Subscribe("alerts", "alert_copilot_group")
	require.NoError(t, mem.Publish(context.Background(), "alerts", "7", models.NewAlertEvent(alert)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, mem) }()

	select {
	case <-enriched:
	case <-time.After(time.Second):
		t.Fatal("worker did not process the event")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	exp, err := st.GetExplanation(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "from the bus", exp.Summary)
}
