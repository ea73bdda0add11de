// Package config handles environment-variable-driven configuration for
// beacon: base directories, provider credentials, and every tunable
// threshold the probe/health/DNS pipeline reads.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Directories
	BaseDir string

	// Provider credentials
	HetznerDNSAPIToken string

	// Telegram bot (optional — bot is disabled if BotToken is empty)
	TelegramBotToken      string
	TelegramAllowedUserID int64
	TelegramProxy         string

	// Tick intervals
	MonitorInterval      time.Duration
	LBInterval           time.Duration
	DNSMinUpdateInterval time.Duration

	// Hysteresis thresholds
	FailThreshold    int
	SuccessThreshold int

	// Liveness probe tuning
	CurlTimeout     time.Duration
	CurlRetries     int
	ProbePortMin    int
	ProbePortMax    int
	ProbeWarmup     time.Duration
	ProbeKillGrace  time.Duration
	ProbeBinaryPath string
	LivenessURLs    []string

	// Telegram long-poll
	PollTimeout time.Duration

	// Alerting
	AlertCooldown time.Duration

	// DNS
	DefaultTTL int

	// DNS API client (distinct retry budget from probe liveness retries —
	// the spec's CURL_RETRIES governs probe HTTP attempts through SOCKS5,
	// not calls to the DNS provider).
	DNSAPIRetries int
	DNSAPITimeout time.Duration
}

// LoadEnvConfig reads environment variables and returns a validated
// EnvConfig. Returns an error joining every validation failure found.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	cfg.BaseDir = envStr("BEACON_BASE_DIR", ".")

	cfg.HetznerDNSAPIToken = os.Getenv("HETZNER_DNS_API_TOKEN")
	if strings.TrimSpace(cfg.HetznerDNSAPIToken) == "" {
		errs = append(errs, "HETZNER_DNS_API_TOKEN must be set")
	}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramProxy = os.Getenv("TELEGRAM_PROXY")
	if v := os.Getenv("TELEGRAM_ALLOWED_USER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("TELEGRAM_ALLOWED_USER_ID: invalid integer %q", v))
		} else {
			cfg.TelegramAllowedUserID = id
		}
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramAllowedUserID == 0 {
		errs = append(errs, "TELEGRAM_ALLOWED_USER_ID must be set when TELEGRAM_BOT_TOKEN is set")
	}

	cfg.MonitorInterval = envDuration("MONITOR_INTERVAL", 15*time.Second, &errs)
	cfg.LBInterval = envDuration("LB_INTERVAL", 60*time.Second, &errs)
	cfg.DNSMinUpdateInterval = envDuration("DNS_MIN_UPDATE_INTERVAL", 10*time.Second, &errs)

	cfg.FailThreshold = envInt("FAIL_THRESHOLD", 3, &errs)
	cfg.SuccessThreshold = envInt("SUCCESS_THRESHOLD", 2, &errs)

	cfg.CurlTimeout = envDuration("CURL_TIMEOUT", 5*time.Second, &errs)
	cfg.CurlRetries = envInt("CURL_RETRIES", 2, &errs)
	cfg.ProbePortMin = envInt("PROBE_PORT_MIN", 20000, &errs)
	cfg.ProbePortMax = envInt("PROBE_PORT_MAX", 60000, &errs)
	cfg.ProbeWarmup = envDuration("PROBE_WARMUP", 1*time.Second, &errs)
	cfg.ProbeKillGrace = envDuration("PROBE_KILL_GRACE", 2*time.Second, &errs)
	cfg.ProbeBinaryPath = envStr("PROBE_BINARY_PATH", "xray")
	cfg.LivenessURLs = envStringList("LIVENESS_URLS", []string{
		"https://www.gstatic.com/generate_204",
		"https://cp.cloudflare.com/generate_204",
	})

	cfg.PollTimeout = envDuration("POLL_TIMEOUT", 30*time.Second, &errs)

	cfg.AlertCooldown = envDuration("ALERT_COOLDOWN", 300*time.Second, &errs)

	cfg.DefaultTTL = envInt("DEFAULT_TTL", 60, &errs)

	cfg.DNSAPIRetries = envInt("DNS_API_RETRIES", 3, &errs)
	cfg.DNSAPITimeout = envDuration("DNS_API_TIMEOUT", 15*time.Second, &errs)

	// --- Validation ---
	validatePositiveDuration("MONITOR_INTERVAL", cfg.MonitorInterval, &errs)
	validatePositiveDuration("LB_INTERVAL", cfg.LBInterval, &errs)
	validatePositiveDuration("DNS_MIN_UPDATE_INTERVAL", cfg.DNSMinUpdateInterval, &errs)
	validatePositive("FAIL_THRESHOLD", cfg.FailThreshold, &errs)
	validatePositive("SUCCESS_THRESHOLD", cfg.SuccessThreshold, &errs)
	validatePositiveDuration("CURL_TIMEOUT", cfg.CurlTimeout, &errs)
	if cfg.CurlRetries < 0 {
		errs = append(errs, "CURL_RETRIES must not be negative")
	}
	validatePort("PROBE_PORT_MIN", cfg.ProbePortMin, &errs)
	validatePort("PROBE_PORT_MAX", cfg.ProbePortMax, &errs)
	if cfg.ProbePortMin > 0 && cfg.ProbePortMax > 0 && cfg.ProbePortMin >= cfg.ProbePortMax {
		errs = append(errs, "PROBE_PORT_MIN must be less than PROBE_PORT_MAX")
	}
	validatePositiveDuration("PROBE_WARMUP", cfg.ProbeWarmup, &errs)
	validatePositiveDuration("PROBE_KILL_GRACE", cfg.ProbeKillGrace, &errs)
	validatePositiveDuration("ALERT_COOLDOWN", cfg.AlertCooldown, &errs)
	if cfg.DefaultTTL < 1 {
		errs = append(errs, "DEFAULT_TTL must be at least 1")
	}
	if cfg.DNSAPIRetries < 1 {
		errs = append(errs, "DNS_API_RETRIES must be at least 1")
	}
	validatePositiveDuration("DNS_API_TIMEOUT", cfg.DNSAPITimeout, &errs)
	if strings.TrimSpace(cfg.ProbeBinaryPath) == "" {
		errs = append(errs, "PROBE_BINARY_PATH must not be empty")
	}
	if len(cfg.LivenessURLs) == 0 {
		errs = append(errs, "LIVENESS_URLS must list at least one URL")
	}
	validatePositiveDuration("POLL_TIMEOUT", cfg.PollTimeout, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envStringList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}

func validatePositiveDuration(name string, value time.Duration, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %s", name, value))
	}
}
