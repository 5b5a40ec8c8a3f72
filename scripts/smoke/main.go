// Package main runs smoke scenarios against a running agency-leads API.
//
// Scenarios cover:
//   - Hot lead submission (JSON)
//   - Form-encoded submission
//   - Validation failure
//   - CSP report collection
//   - Admin lead listing (when ADMIN_JWT_SECRET is set)
//   - Rate limiting (opt-in, exhausts the contact-form bucket for this IP)
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run ./scripts/smoke              # runs all but rate-limit
//	API_BASE_URL=... ADMIN_JWT_SECRET=... go run ./scripts/smoke hot-lead  # runs one
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/wolfman30/agency-leads/internal/http/middleware"
)

var (
	apiBase   string
	jwtSecret string
	client    = &http.Client{Timeout: 30 * time.Second}
)

type scenario struct {
	Name   string
	Fn     func(t *T)
	OptIn  bool
	NeedsJ bool
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...any) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

type contactResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func postContact(payload map[string]any) (int, contactResponse, error) {
	body, _ := json.Marshal(payload)
	resp, err := client.Post(apiBase+"/api/contact", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, contactResponse{}, err
	}
	defer resp.Body.Close()
	var out contactResponse
	err = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out, err
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s+%d@smoke.northpeak.dev", prefix, time.Now().UnixNano())
}

func scenarioHotLead(t *T) {
	status, res, err := postContact(map[string]any{
		"firstName": "Jane",
		"lastName":  "Doe",
		"email":     uniqueEmail("jane"),
		"company":   "Acme Corp",
		"service":   "web-development",
		"budget":    "high",
		"timeline":  "urgent",
		"message":   "We need a new marketing site before the spring launch.",
	})
	if err != nil {
		t.fatalf("post contact: %v", err)
		return
	}
	t.check("status is 200", status == http.StatusOK)
	t.check("success is true", res.Success)
	t.check("message is set", res.Message != "")
}

func scenarioFormEncoded(t *T) {
	form := url.Values{
		"firstName": {"Sam"},
		"email":     {uniqueEmail("sam")},
		"message":   {"Looking for help with an SEO audit of our store."},
		"service":   {"seo"},
	}
	resp, err := client.PostForm(apiBase+"/api/contact", form)
	if err != nil {
		t.fatalf("post form: %v", err)
		return
	}
	defer resp.Body.Close()
	var res contactResponse
	_ = json.NewDecoder(resp.Body).Decode(&res)
	t.check("status is 200", resp.StatusCode == http.StatusOK)
	t.check("success is true", res.Success)
}

func scenarioValidation(t *T) {
	status, res, err := postContact(map[string]any{
		"firstName": "",
		"email":     "not-an-email",
		"message":   "short",
	})
	if err != nil {
		t.fatalf("post contact: %v", err)
		return
	}
	t.check("status is 400", status == http.StatusBadRequest)
	t.check("success is false", !res.Success)
	t.check("error code is validation_failed", res.Error == "validation_failed")
	t.check("message is set", res.Message != "")
}

func scenarioCSPReport(t *T) {
	body := `{"csp-report":{"document-uri":"https://northpeak.dev/contact","violated-directive":"script-src","blocked-uri":"https://evil.example/x.js"}}`
	resp, err := client.Post(apiBase+"/api/csp-report", "application/csp-report", strings.NewReader(body))
	if err != nil {
		t.fatalf("post csp report: %v", err)
		return
	}
	defer resp.Body.Close()
	t.check("status is 204", resp.StatusCode == http.StatusNoContent)
}

func scenarioAdminLeads(t *T) {
	token, err := middleware.SignAdminToken(jwtSecret, "smoke", 10*time.Minute)
	if err != nil {
		t.fatalf("sign token: %v", err)
		return
	}
	req, _ := http.NewRequest(http.MethodGet, apiBase+"/admin/leads?limit=5", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		t.fatalf("list leads: %v", err)
		return
	}
	defer resp.Body.Close()
	var out struct {
		Leads []map[string]any `json:"leads"`
		Count int              `json:"count"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	t.check("status is 200", resp.StatusCode == http.StatusOK)
	t.check("count matches leads", out.Count == len(out.Leads))

	unauth, err := client.Get(apiBase + "/admin/leads")
	if err != nil {
		t.fatalf("list leads without token: %v", err)
		return
	}
	_, _ = io.Copy(io.Discard, unauth.Body)
	unauth.Body.Close()
	t.check("missing token is 401", unauth.StatusCode == http.StatusUnauthorized)
}

func scenarioRateLimit(t *T) {
	var last contactResponse
	var lastStatus int
	for i := 0; i < 20; i++ {
		status, res, err := postContact(map[string]any{
			"firstName": "Burst",
			"email":     uniqueEmail("burst"),
			"message":   "Checking that the contact form throttles repeat senders.",
		})
		if err != nil {
			t.fatalf("post contact: %v", err)
			return
		}
		last, lastStatus = res, status
		if status == http.StatusTooManyRequests {
			break
		}
	}
	t.check("eventually 429", lastStatus == http.StatusTooManyRequests)
	t.check("error code is rate_limited", last.Error == "rate_limited")
	t.check("message mentions minutes", strings.Contains(last.Message, "minute"))
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	jwtSecret = os.Getenv("ADMIN_JWT_SECRET")
	if apiBase == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL required")
		os.Exit(1)
	}

	scenarios := []scenario{
		{Name: "hot-lead", Fn: scenarioHotLead},
		{Name: "form-encoded", Fn: scenarioFormEncoded},
		{Name: "validation", Fn: scenarioValidation},
		{Name: "csp-report", Fn: scenarioCSPReport},
		{Name: "admin-leads", Fn: scenarioAdminLeads, NeedsJ: true},
		{Name: "rate-limit", Fn: scenarioRateLimit, OptIn: true},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed, totalFailed := 0, 0
	results := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}
		if filter == "" && s.OptIn {
			continue
		}
		if s.NeedsJ && jwtSecret == "" {
			results = append(results, fmt.Sprintf("  SKIP %s (ADMIN_JWT_SECRET not set)", s.Name))
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{}
		s.Fn(t)
		totalPassed += t.passed
		totalFailed += t.failed

		status := "OK  "
		if t.failed > 0 {
			status = "FAIL"
		}
		results = append(results, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range results {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)
	if totalFailed > 0 {
		os.Exit(1)
	}
}
