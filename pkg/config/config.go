package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	// Remote cloud control plane
	CloudAPIURL   string
	CloudAPIToken string
	ItemTimeout   time.Duration // per remote lookup inside a batch

	// Storage
	DatabaseURL string

	// Metrics source
	PrometheusURL string

	// Event fan-out (empty brokers disables publishing)
	KafkaBrokers []string
	KafkaTopic   string

	// Reconciliation
	FallbackSystemID string // owner for imported remote-only VMs

	// Alerting
	AlertMinSamples int // window coverage floor

	Verbose bool
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	return &Config{
		CloudAPIURL:      getEnv("CLOUD_API_URL", "http://localhost:8774"),
		CloudAPIToken:    getEnv("CLOUD_API_TOKEN", ""),
		ItemTimeout:      time.Duration(getEnvInt("CLOUD_ITEM_TIMEOUT_SECONDS", 10)) * time.Second,
		DatabaseURL:      getEnv("DATABASE_URL", "host=localhost port=5432 user=vmops password=devpassword dbname=vmops sslmode=disable"),
		PrometheusURL:    getEnv("PROMETHEUS_URL", "http://localhost:9090"),
		KafkaBrokers:     getEnvList("KAFKA_BROKERS", nil),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "vm-status-changes"),
		FallbackSystemID: getEnv("FALLBACK_SYSTEM_ID", ""),
		AlertMinSamples:  getEnvInt("ALERT_MIN_SAMPLES", 3),
		Verbose:          getEnvBool("VERBOSE", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.CloudAPIURL == "" {
		return fmt.Errorf("CLOUD_API_URL must be set")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if c.ItemTimeout < time.Second {
		return fmt.Errorf("item timeout must be at least 1 second")
	}
	if c.AlertMinSamples < 1 {
		return fmt.Errorf("alert minimum sample count must be at least 1")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC must be set when brokers are configured")
	}
	return nil
}
