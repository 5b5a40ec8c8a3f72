package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	SiteURL       string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Rate limiting
	RateLimitBackend    string
	RateLimitFailClosed bool
	ContactRateLimit    int
	ContactRateWindow   time.Duration
	APIRatePerSecond    float64
	APIRateBurst        int

	// Email delivery
	EmailProvider    string
	SendGridAPIKey   string
	EmailFromAddress string
	EmailFromName    string
	AdminEmails      []string
	EmailSendTimeout time.Duration
	SequencesFile    string

	// Chat webhook alerts
	WebhookURL     string
	WebhookTimeout time.Duration

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Follow-up delivery
	FollowupQueueURL     string
	UseMemoryQueue       bool
	FollowupPollInterval time.Duration
	FollowupBatchSize    int
	WorkerCount          int

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	CSPBufferSize      int
	// TrustedProxyCIDRs lists the load balancers allowed to set
	// X-Forwarded-For. Bare IPs are accepted.
	TrustedProxyCIDRs []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		SiteURL:       strings.TrimRight(getEnv("SITE_URL", "http://localhost:3000"), "/"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		RateLimitBackend:    strings.ToLower(strings.TrimSpace(getEnv("RATE_LIMIT_BACKEND", "memory"))),
		RateLimitFailClosed: getEnvAsBool("RATE_LIMIT_FAIL_CLOSED", false),
		ContactRateLimit:    getEnvAsInt("CONTACT_RATE_LIMIT", 5),
		ContactRateWindow:   getEnvAsDuration("CONTACT_RATE_WINDOW", 15*time.Minute),
		APIRatePerSecond:    getEnvAsFloat("API_RATE_PER_SECOND", 10),
		APIRateBurst:        getEnvAsInt("API_RATE_BURST", 20),

		EmailProvider:    strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Northpeak Digital"),
		AdminEmails:      getEnvAsList("ADMIN_EMAILS"),
		EmailSendTimeout: getEnvAsDuration("EMAIL_SEND_TIMEOUT", 10*time.Second),
		SequencesFile:    getEnv("SEQUENCES_FILE", ""),

		WebhookURL:     getEnv("DISCORD_WEBHOOK_URL", ""),
		WebhookTimeout: getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		FollowupQueueURL:     getEnv("FOLLOWUP_QUEUE_URL", ""),
		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", false),
		FollowupPollInterval: getEnvAsDuration("FOLLOWUP_POLL_INTERVAL", time.Minute),
		FollowupBatchSize:    getEnvAsInt("FOLLOWUP_BATCH_SIZE", 25),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 2),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		CSPBufferSize:      getEnvAsInt("CSP_BUFFER_SIZE", 1000),
		TrustedProxyCIDRs:  getEnvAsList("TRUSTED_PROXY_CIDRS"),
	}
}

// EmailConfigured reports whether any real email provider can be built.
func (c *Config) EmailConfigured() bool {
	switch c.EmailProvider {
	case "none", "disabled":
		return false
	case "stub":
		return true
	case "ses":
		return c.EmailFromAddress != ""
	case "sendgrid":
		return c.SendGridAPIKey != "" && c.EmailFromAddress != ""
	default:
		return c.SendGridAPIKey != "" && c.EmailFromAddress != ""
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	switch c.RateLimitBackend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("RATE_LIMIT_BACKEND=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend))
	}
	switch c.EmailProvider {
	case "auto", "sendgrid", "ses", "stub", "none", "disabled":
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_PROVIDER %q", c.EmailProvider))
	}
	if c.EmailConfigured() && len(c.AdminEmails) == 0 {
		errs = append(errs, errors.New("ADMIN_EMAILS is required when email delivery is configured"))
	}
	if c.ContactRateLimit <= 0 || c.ContactRateWindow <= 0 {
		errs = append(errs, errors.New("CONTACT_RATE_LIMIT and CONTACT_RATE_WINDOW must be positive"))
	}
	if _, err := c.TrustedProxies(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TrustedProxies parses TrustedProxyCIDRs.
func (c *Config) TrustedProxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxyCIDRs))
	for _, raw := range c.TrustedProxyCIDRs {
		if prefix, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXY_CIDRS entry %q", raw)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
