package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "RATE_LIMIT_BACKEND", "CONTACT_RATE_WINDOW", "ADMIN_EMAILS", "SENDGRID_API_KEY"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.RateLimitBackend != "memory" {
		t.Fatalf("expected memory rate limit backend, got %s", cfg.RateLimitBackend)
	}
	if cfg.RateLimitFailClosed {
		t.Fatalf("expected limiter to fail open by default")
	}
	if cfg.ContactRateLimit != 5 || cfg.ContactRateWindow != 15*time.Minute {
		t.Fatalf("unexpected contact rate policy %d/%s", cfg.ContactRateLimit, cfg.ContactRateWindow)
	}
	if cfg.WebhookTimeout != 5*time.Second {
		t.Fatalf("expected 5s webhook timeout, got %s", cfg.WebhookTimeout)
	}
	if cfg.EmailConfigured() {
		t.Fatalf("expected email to be unconfigured without credentials")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("SITE_URL", "https://example.com/")
	t.Setenv("RATE_LIMIT_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("RATE_LIMIT_FAIL_CLOSED", "true")
	t.Setenv("CONTACT_RATE_LIMIT", "3")
	t.Setenv("CONTACT_RATE_WINDOW", "1h")
	t.Setenv("SENDGRID_API_KEY", "sg-key")
	t.Setenv("EMAIL_FROM_ADDRESS", "hello@example.com")
	t.Setenv("ADMIN_EMAILS", "ops@example.com, , sales@example.com")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://example.com")
	cfg := Load()
	if cfg.Port != "9090" || cfg.Env != "production" {
		t.Fatalf("expected overrides, got %s/%s", cfg.Port, cfg.Env)
	}
	if cfg.SiteURL != "https://example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.SiteURL)
	}
	if cfg.RateLimitBackend != "redis" || !cfg.RateLimitFailClosed {
		t.Fatalf("unexpected limiter config %s/%v", cfg.RateLimitBackend, cfg.RateLimitFailClosed)
	}
	if cfg.ContactRateLimit != 3 || cfg.ContactRateWindow != time.Hour {
		t.Fatalf("unexpected contact policy %d/%s", cfg.ContactRateLimit, cfg.ContactRateWindow)
	}
	if len(cfg.AdminEmails) != 2 || cfg.AdminEmails[1] != "sales@example.com" {
		t.Fatalf("unexpected admin emails %v", cfg.AdminEmails)
	}
	if !cfg.EmailConfigured() {
		t.Fatalf("expected email configured")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsInconsistentSettings(t *testing.T) {
	cfg := &Config{
		RateLimitBackend:  "redis",
		EmailProvider:     "sendgrid",
		SendGridAPIKey:    "key",
		EmailFromAddress:  "hello@example.com",
		ContactRateLimit:  5,
		ContactRateWindow: time.Minute,
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"REDIS_ADDR", "ADMIN_EMAILS"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestEmailConfiguredSES(t *testing.T) {
	cfg := &Config{EmailProvider: "ses", EmailFromAddress: "hello@example.com"}
	if !cfg.EmailConfigured() {
		t.Fatal("expected SES to be configured with a from address")
	}
	cfg.EmailProvider = "none"
	if cfg.EmailConfigured() {
		t.Fatal("expected explicit none to disable email")
	}
}

func TestTrustedProxies(t *testing.T) {
	cfg := &Config{TrustedProxyCIDRs: []string{"10.0.0.0/8", "192.0.2.7", "2001:db8::/32"}}
	prefixes, err := cfg.TrustedProxies()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"10.0.0.0/8", "192.0.2.7/32", "2001:db8::/32"}
	if len(prefixes) != len(want) {
		t.Fatalf("got %v", prefixes)
	}
	for i, p := range prefixes {
		if p.String() != want[i] {
			t.Fatalf("prefix %d: got %s want %s", i, p, want[i])
		}
	}

	cfg.TrustedProxyCIDRs = []string{"not-a-cidr"}
	if _, err := cfg.TrustedProxies(); err == nil || !strings.Contains(err.Error(), "TRUSTED_PROXY_CIDRS") {
		t.Fatalf("expected TRUSTED_PROXY_CIDRS error, got %v", err)
	}
}
