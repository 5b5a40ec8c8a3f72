package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wolfman30/agency-leads/internal/leads"
	"github.com/wolfman30/agency-leads/internal/scoring"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

// ErrBreakerOpen means recent webhook calls failed and this one was skipped.
var ErrBreakerOpen = errors.New("notify: webhook circuit open")

// DefaultWebhookTimeout bounds a single webhook post.
const DefaultWebhookTimeout = 5 * time.Second

// WebhookConfig configures the chat alert client.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	// Breaker trips after MinRequests calls with at least FailureRatio failing
	// and stays open for OpenFor.
	MinRequests  uint32
	FailureRatio float64
	OpenFor      time.Duration
}

// WebhookClient posts Discord-compatible alerts.
type WebhookClient struct {
	url     string
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logging.Logger
}

// NewWebhookClient returns nil when no URL is configured.
func NewWebhookClient(cfg WebhookConfig, httpClient *http.Client, logger *logging.Logger) *WebhookClient {
	if cfg.URL == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWebhookTimeout
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 3
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = time.Minute
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &WebhookClient{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		http:    httpClient,
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("webhook circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Post sends payload as JSON. The call is bounded by the client timeout
// regardless of ctx's deadline.
func (c *WebhookClient) Post(ctx context.Context, payload any) error {
	if c == nil {
		return fmt.Errorf("notify: webhook: %w", ErrNotConfigured)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: webhook: encode: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBreakerOpen
	}
	return err
}

func (c *WebhookClient) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// State exposes the breaker state for health output.
func (c *WebhookClient) State() string {
	if c == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// NotifyNewLead posts the lead alert embed.
func (c *WebhookClient) NotifyNewLead(ctx context.Context, sub leads.Submission, result scoring.Result) error {
	return c.Post(ctx, LeadAlert(sub, result, time.Now().UTC()))
}

// DiscordPayload is the subset of the Discord webhook schema we send.
type DiscordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

type DiscordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []DiscordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

var categoryColors = map[scoring.Category]int{
	scoring.CategoryHot:  0xef4444,
	scoring.CategoryWarm: 0xf59e0b,
	scoring.CategoryCold: 0x3b82f6,
}

// maxFieldValue is Discord's limit for an embed field value.
const maxFieldValue = 1024

// LeadAlert builds the alert payload. User supplied text is HTML-escaped
// because downstream relays render the payload into HTML.
func LeadAlert(sub leads.Submission, result scoring.Result, at time.Time) DiscordPayload {
	embed := DiscordEmbed{
		Title:     fmt.Sprintf("New %s lead (score %d)", result.Category, result.Score),
		Color:     categoryColors[result.Category],
		Timestamp: at.Format(time.RFC3339),
	}
	field := func(name, value string, inline bool) {
		if value == "" {
			return
		}
		embed.Fields = append(embed.Fields, DiscordField{Name: name, Value: clip(html.EscapeString(value), maxFieldValue), Inline: inline})
	}
	field("Name", sub.FullName(), true)
	field("Email", sub.Email, true)
	field("Company", sub.Company, true)
	field("Service", sub.Service, true)
	field("Budget", sub.Budget, true)
	field("Timeline", sub.Timeline, true)
	field("Sequence", string(result.Sequence), true)
	field("Message", sub.Message, false)
	return DiscordPayload{Embeds: []DiscordEmbed{embed}}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
