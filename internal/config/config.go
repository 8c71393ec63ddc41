/**
 * Configuration for the crowd data worker and dashboard
 *
 * Loads configuration from environment variables (optionally seeded from .env)
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds worker and dashboard configuration
type Config struct {
	// Filesystem layout
	InboxDir   string
	ReportPath string
	CSVPath    string

	// OCR configuration
	OCREngine          string // "command" or "tesseract"
	OCRCommand         string
	OCRArgs            []string
	OCRTimeout         time.Duration
	OCRMaxAttempts     int
	OCRAcceptScore     int
	OCRBackoff         time.Duration
	OCRPreprocess      bool
	TesseractLanguages []string

	// Records below this confidence are annotated as low confidence
	LowConfidenceThreshold float64

	// Optional backends
	DatabaseURL string
	RedisURL    string

	// Long-running modes
	BatchSchedule string
	WatchDebounce time.Duration

	// Dashboard
	DashboardPort string
	CacheTTL      time.Duration

	AppEnv string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		InboxDir:               getEnvOrDefault("INBOX_DIR", "screenshots/inbox"),
		ReportPath:             getEnvOrDefault("REPORT_PATH", "scripts/extracted-data.json"),
		CSVPath:                getEnvOrDefault("CSV_PATH", "public/fit_place24_data.csv"),
		OCREngine:              strings.ToLower(getEnvOrDefault("OCR_ENGINE", "command")),
		OCRCommand:             getEnvOrDefault("OCR_COMMAND", "tesseract"),
		OCRArgs:                strings.Fields(getEnvOrDefault("OCR_ARGS", "{image} stdout -l jpn+eng --psm 6")),
		OCRTimeout:             time.Duration(getEnvAsIntOrDefault("OCR_TIMEOUT_MS", 30000)) * time.Millisecond,
		OCRMaxAttempts:         getEnvAsIntOrDefault("OCR_MAX_ATTEMPTS", 3),
		OCRAcceptScore:         getEnvAsIntOrDefault("OCR_ACCEPT_SCORE", 70),
		OCRBackoff:             time.Duration(getEnvAsIntOrDefault("OCR_BACKOFF_MS", 1000)) * time.Millisecond,
		OCRPreprocess:          getEnvAsBoolOrDefault("OCR_PREPROCESS", false),
		TesseractLanguages:     splitList(getEnvOrDefault("TESSERACT_LANGUAGES", "jpn,eng")),
		LowConfidenceThreshold: getEnvAsFloatOrDefault("LOW_CONFIDENCE_THRESHOLD", 0.8),
		DatabaseURL:            getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:               getEnvOrDefault("REDIS_URL", ""),
		BatchSchedule:          getEnvOrDefault("BATCH_SCHEDULE", "*/30 * * * *"),
		WatchDebounce:          time.Duration(getEnvAsIntOrDefault("WATCH_DEBOUNCE_MS", 1500)) * time.Millisecond,
		DashboardPort:          getEnvOrDefault("DASHBOARD_PORT", "8080"),
		CacheTTL:               time.Duration(getEnvAsIntOrDefault("CACHE_TTL_SECONDS", 300)) * time.Second,
		AppEnv:                 getEnvOrDefault("APP_ENV", "development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.InboxDir == "" {
		return fmt.Errorf("INBOX_DIR is required")
	}

	if c.ReportPath == "" {
		return fmt.Errorf("REPORT_PATH is required")
	}

	if c.CSVPath == "" {
		return fmt.Errorf("CSV_PATH is required")
	}

	switch c.OCREngine {
	case "command":
		if c.OCRCommand == "" {
			return fmt.Errorf("OCR_COMMAND is required when OCR_ENGINE=command")
		}
	case "tesseract":
		if len(c.TesseractLanguages) == 0 {
			return fmt.Errorf("TESSERACT_LANGUAGES is required when OCR_ENGINE=tesseract")
		}
	default:
		return fmt.Errorf("OCR_ENGINE must be one of command, tesseract, got %q", c.OCREngine)
	}

	if c.OCRMaxAttempts < 1 || c.OCRMaxAttempts > 10 {
		return fmt.Errorf("OCR_MAX_ATTEMPTS must be between 1 and 10, got %d", c.OCRMaxAttempts)
	}

	if c.OCRAcceptScore < 0 || c.OCRAcceptScore > 100 {
		return fmt.Errorf("OCR_ACCEPT_SCORE must be between 0 and 100, got %d", c.OCRAcceptScore)
	}

	if c.OCRTimeout < time.Second || c.OCRTimeout > 10*time.Minute {
		return fmt.Errorf("OCR_TIMEOUT_MS must be between 1s and 10m, got %v", c.OCRTimeout)
	}

	if c.OCRBackoff < 0 {
		return fmt.Errorf("OCR_BACKOFF_MS must not be negative, got %v", c.OCRBackoff)
	}

	if c.LowConfidenceThreshold < 0 || c.LowConfidenceThreshold > 1 {
		return fmt.Errorf("LOW_CONFIDENCE_THRESHOLD must be between 0 and 1, got %v", c.LowConfidenceThreshold)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must not be negative, got %v", c.CacheTTL)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
