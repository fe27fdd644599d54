package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config carries everything the process reads from the environment.
type Config struct {
	Port                string
	CORSOrigin          string
	Environment         string
	ModelAPIKey         string
	ModelBaseURL        string
	ProxyURL            string
	ToolProviderAPIKey  string
	ToolProviderBaseURL string
	MaxIterations       int
	CallTimeout         time.Duration
	ReportDir           string
	RequestLogPath      string
	RecordDir           string
}

// FromEnv reads configuration from environment variables. Only the model
// credential is mandatory; everything else has a default.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:                ParseStringEnv("PORT", "3000"),
		CORSOrigin:          ParseStringEnv("CORS_ORIGIN", "*"),
		Environment:         strings.ToLower(ParseStringEnv("APP_ENV", EnvDevelopment)),
		ModelAPIKey:         strings.TrimSpace(os.Getenv("MODEL_API_KEY")),
		ModelBaseURL:        strings.TrimSpace(os.Getenv("MODEL_BASE_URL")),
		ProxyURL:            strings.TrimSpace(os.Getenv("PROXY_URL")),
		ToolProviderAPIKey:  strings.TrimSpace(os.Getenv("TOOL_PROVIDER_API_KEY")),
		ToolProviderBaseURL: ParseStringEnv("TOOL_PROVIDER_BASE_URL", "https://backend.composio.dev/api"),
		MaxIterations:       ParseIntEnv("TOOL_LOOP_MAX_ITERATIONS", 10),
		CallTimeout:         ParseDurationEnv("UPSTREAM_CALL_TIMEOUT", 120*time.Second),
		ReportDir:           ParseStringEnv("REPORT_DIR", "public"),
		RequestLogPath:      ParseStringEnv("REQUEST_LOG_PATH", "logs/requests.log"),
		RecordDir:           strings.TrimSpace(os.Getenv("RECORD_DIR")),
	}
	if cfg.ModelAPIKey == "" {
		return Config{}, fmt.Errorf("MODEL_API_KEY is required")
	}
	switch cfg.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return Config{}, fmt.Errorf("APP_ENV must be %q or %q", EnvDevelopment, EnvProduction)
	}
	if cfg.MaxIterations < 0 {
		return Config{}, fmt.Errorf("TOOL_LOOP_MAX_ITERATIONS must be >= 0")
	}
	return cfg, nil
}

// Production reports whether error details should be withheld from clients.
func (c Config) Production() bool {
	return c.Environment == EnvProduction
}

func ParseStringEnv(key, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	return raw
}

func ParseDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	if d <= 0 {
		return fallback
	}
	return d
}

func ParseIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func ParseBoolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
