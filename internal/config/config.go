package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable keys
const (
	EnvKeyHTTPAddr       = "VITALFLOW_HTTP_ADDR"
	EnvKeyCopilotAddr    = "VITALFLOW_COPILOT_ADDR"
	EnvKeyLogLevel       = "VITALFLOW_LOG_LEVEL"
	EnvKeyDBPath         = "VITALFLOW_DB_PATH"
	EnvKeyKafkaBrokers   = "VITALFLOW_KAFKA_BROKERS"
	EnvKeyTopicAlerts    = "VITALFLOW_TOPIC_ALERTS"
	EnvKeyTopicVitals    = "VITALFLOW_TOPIC_VITALS"
	EnvKeyConsumerGroup  = "VITALFLOW_CONSUMER_GROUP"
	EnvKeyAPIToken       = "VITALFLOW_API_TOKEN"
	EnvKeyLLMBaseURL     = "VITALFLOW_LLM_BASE_URL"
	EnvKeyEnrichTimeout  = "VITALFLOW_ENRICH_TIMEOUT"
	EnvKeyMinDaysAdm     = "VITALFLOW_MIN_DAYS_ADMITTED"
	EnvKeyAlertWindowHr  = "VITALFLOW_ALERT_WINDOW_HOURS"
	EnvKeyVitalsWindowHr = "VITALFLOW_VITALS_WINDOW_HOURS"
)

// Discharge holds the stability-window constants consumed by the discharge
// evaluator. Injected at construction so tests can exercise boundary values.
type Discharge struct {
	MinDaysAdmitted   int
	AlertWindowHours  int
	VitalsWindowHours int
}

// Config holds runtime configuration for both binaries
type Config struct {
	HTTPAddr      string
	CopilotAddr   string
	LogLevel      string
	DBPath        string
	KafkaBrokers  []string
	TopicAlerts   string
	TopicVitals   string
	ConsumerGroup string
	// APIToken guards the HTTP API when set; empty disables auth
	APIToken   string
	LLMBaseURL string
	EnrichTimeout time.Duration
	Discharge     Discharge
}

// Load reads configuration from the environment, after loading a .env file
// if one is present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:      getEnv(EnvKeyHTTPAddr, ":8080"),
		CopilotAddr:   getEnv(EnvKeyCopilotAddr, ":8081"),
		LogLevel:      getEnv(EnvKeyLogLevel, "info"),
		DBPath:        getEnv(EnvKeyDBPath, "vitalflow.db"),
		KafkaBrokers:  strings.Split(getEnv(EnvKeyKafkaBrokers, "localhost:9092"), ","),
		TopicAlerts:   getEnv(EnvKeyTopicAlerts, "alerts"),
		TopicVitals:   getEnv(EnvKeyTopicVitals, "vitals_stream"),
		ConsumerGroup: getEnv(EnvKeyConsumerGroup, "alert_copilot_group"),
		APIToken:      getEnv(EnvKeyAPIToken, ""),
		LLMBaseURL:    getEnv(EnvKeyLLMBaseURL, "http://localhost:11434"),
		EnrichTimeout: getEnvDuration(EnvKeyEnrichTimeout, 30*time.Second),
		Discharge: Discharge{
			MinDaysAdmitted:   getEnvInt(EnvKeyMinDaysAdm, 2),
			AlertWindowHours:  getEnvInt(EnvKeyAlertWindowHr, 12),
			VitalsWindowHours: getEnvInt(EnvKeyVitalsWindowHr, 24),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
