package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every knob SPEC_FULL §4.6/§6 recognizes, loaded from
// the environment (with optional .env support) and defaulted/validated
// the way ipadev88-proxy-checker-api's config.Config does.
type Config struct {
	MaxLoginRetries      int
	LoginRetryDelay      time.Duration
	MaxGCReconnectAttempts int
	GCReconnectDelay     time.Duration
	RequestTTL           time.Duration
	RequestDelay         time.Duration
	HealthCheckInterval  time.Duration
	RefreshInterval      time.Duration
	RefreshJitter        time.Duration
	GCInactivityCeiling  time.Duration
	StartupBarrier       time.Duration

	ProxyMode            string // "clash", "static", or "none"
	ProxySwitchCooldown  time.Duration
	ProxyPort            int
	ClashAPIURL          string
	ClashSecret          string

	AccountsFile         string
	ListenAddr           string
	LogLevel             string
	LogFormat            string
	MetricsNamespace     string
}

// LoadConfig reads .env (if present) and the environment, applying
// SPEC_FULL's defaults, then validates the result.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		MaxLoginRetries:        envInt("MAX_LOGIN_RETRIES", 5),
		LoginRetryDelay:        envDuration("LOGIN_RETRY_DELAY_MS", 5000*time.Millisecond),
		MaxGCReconnectAttempts: envInt("MAX_GC_RECONNECT_ATTEMPTS", 10),
		GCReconnectDelay:       envDuration("GC_RECONNECT_DELAY_MS", 10000*time.Millisecond),
		RequestTTL:             envDuration("REQUEST_TTL_MS", 8000*time.Millisecond),
		RequestDelay:           envDuration("REQUEST_DELAY_MS", 1000*time.Millisecond),
		HealthCheckInterval:    60 * time.Second,
		RefreshInterval:        30 * time.Minute,
		RefreshJitter:          4 * time.Minute,
		GCInactivityCeiling:    10 * time.Minute,
		StartupBarrier:         envDuration("STARTUP_BARRIER_MS", 5*time.Minute),

		ProxyMode:           envString("PROXY_MODE", "none"),
		ProxySwitchCooldown: envDuration("PROXY_SWITCH_COOLDOWN_MS", 5000*time.Millisecond),
		ProxyPort:           envInt("PROXY_PORT", 7890),
		ClashAPIURL:         envString("CLASH_API_URL", "http://127.0.0.1:9090"),
		ClashSecret:         os.Getenv("CLASH_SECRET"),

		AccountsFile:     envString("ACCOUNTS_FILE", "accounts.txt"),
		ListenAddr:       envString("LISTEN_ADDR", ":8080"),
		LogLevel:         envString("LOG_LEVEL", "info"),
		LogFormat:        envString("LOG_FORMAT", "json"),
		MetricsNamespace: envString("METRICS_NAMESPACE", "cs2_inspect"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the ranges the config table of SPEC_FULL §6
// implies; mirrors the shape of ipadev88-proxy-checker-api's
// config.Validate().
func (c *Config) Validate() error {
	if c.MaxLoginRetries < 1 {
		return fmt.Errorf("max_login_retries must be >= 1")
	}
	if c.MaxGCReconnectAttempts < 1 {
		return fmt.Errorf("max_gc_reconnect_attempts must be >= 1")
	}
	if c.RequestTTL <= 0 {
		return fmt.Errorf("request_ttl must be positive")
	}
	switch c.ProxyMode {
	case "clash", "static", "none":
	default:
		return fmt.Errorf("proxy_mode must be one of clash, static, none, got %q", c.ProxyMode)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
