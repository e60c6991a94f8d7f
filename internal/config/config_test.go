package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":8081", cfg.CopilotAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "vitalflow.db", cfg.DBPath)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "alerts", cfg.TopicAlerts)
	assert.Equal(t, "vitals_stream", cfg.TopicVitals)
	assert.Equal(t, "alert_copilot_group", cfg.ConsumerGroup)
	assert.Equal(t, "http://localhost:11434", cfg.LLMBaseURL)
	assert.Equal(t, 30*time.Second, cfg.EnrichTimeout)
	assert.Equal(t, Discharge{MinDaysAdmitted: 2, AlertWindowHours: 12, VitalsWindowHours: 24}, cfg.Discharge)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv(EnvKeyHTTPAddr, ":9090")
	t.Setenv(EnvKeyKafkaBrokers, "broker-1:9092,broker-2:9092")
	t.Setenv(EnvKeyEnrichTimeout, "5s")
	t.Setenv(EnvKeyMinDaysAdm, "3")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.EnrichTimeout)
	assert.Equal(t, 3, cfg.Discharge.MinDaysAdmitted)
}

func TestLoadIgnoresUnparseableValues(t *testing.T) {
	t.Setenv(EnvKeyEnrichTimeout, "soon")
	t.Setenv(EnvKeyAlertWindowHr, "twelve")
	t.Setenv(EnvKeyLogLevel, "  ")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.EnrichTimeout)
	assert.Equal(t, 12, cfg.Discharge.AlertWindowHours)
	assert.Equal(t, "info", cfg.LogLevel)
}
