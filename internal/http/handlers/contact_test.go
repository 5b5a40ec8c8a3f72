package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agency-leads/internal/intake"
	"github.com/wolfman30/agency-leads/internal/leads"
	"github.com/wolfman30/agency-leads/internal/ratelimit"
	"github.com/wolfman30/agency-leads/pkg/logging"
)

type fakeSubmitter struct {
	got    []intake.Input
	result intake.Result
}

func (f *fakeSubmitter) Submit(_ context.Context, in intake.Input) intake.Result {
	f.got = append(f.got, in)
	return f.result
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) intake.Response {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp intake.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestContactSubmitForm(t *testing.T) {
	fake := &fakeSubmitter{result: intake.Result{Response: intake.Response{Success: true, Message: intake.MessageSuccess}}}
	h := NewContactHandler(fake, logging.Discard())

	form := url.Values{"firstName": {"Jane"}, "email": {"jane@example.com"}, "message": {"Hi"}}
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Safari")
	req.Header.Set("Referer", "https://northpeak.dev/contact")
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, intake.Response{Success: true, Message: intake.MessageSuccess}, decodeResponse(t, rec))
	require.Len(t, fake.got, 1)
	assert.Equal(t, "Jane", fake.got[0].Values["firstName"])
	assert.Equal(t, leads.RequestMeta{IPAddress: "203.0.113.7", UserAgent: "Safari", RefererURL: "https://northpeak.dev/contact"}, fake.got[0].Meta)
}

func TestContactSubmitJSON(t *testing.T) {
	fake := &fakeSubmitter{result: intake.Result{Response: intake.Response{Success: true, Message: intake.MessageSuccess}}}
	h := NewContactHandler(fake, logging.Discard())

	req := httptest.NewRequest(http.MethodPost, "/api/contact",
		strings.NewReader(`{"firstName":"Jane","email":"jane@example.com","message":"Hi","phone":5551234567,"company":null}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fake.got, 1)
	assert.Equal(t, "5551234567", fake.got[0].Values["phone"])
	_, hasCompany := fake.got[0].Values["company"]
	assert.False(t, hasCompany)
}

func TestContactSubmitUnreadableBody(t *testing.T) {
	tests := []struct {
		name string
		ct   string
		body string
	}{
		{"malformed json", "application/json", "{"},
		{"nested json", "application/json", `{"email":{"x":1}}`},
		{"no content type", "", "email=a"},
		{"plain text", "text/plain", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSubmitter{}
			h := NewContactHandler(fake, logging.Discard())
			req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(tt.body))
			if tt.ct != "" {
				req.Header.Set("Content-Type", tt.ct)
			}
			rec := httptest.NewRecorder()

			h.Submit(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeResponse(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, intake.CodeValidationFailed, resp.Error)
			assert.Empty(t, fake.got)
		})
	}
}

func TestContactSubmitStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		result intake.Result
		status int
	}{
		{"rate limited", intake.Result{Response: intake.Response{Message: "Too many submissions. Please try again in 12 minutes.", Error: intake.CodeRateLimited}, RetryAfter: 11*time.Minute + 30*time.Second}, http.StatusTooManyRequests},
		{"invalid", intake.Result{Response: intake.Response{Message: "Please enter your email address", Error: intake.CodeValidationFailed}}, http.StatusBadRequest},
		{"admin email failed", intake.Result{Response: intake.Response{Message: intake.MessageSendFailed, Error: intake.CodeSendFailed}}, http.StatusBadGateway},
		{"unexpected", intake.Result{Response: intake.Response{Message: intake.MessageUnexpected, Error: intake.CodeUnexpected}}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewContactHandler(&fakeSubmitter{result: tt.result}, logging.Discard())
			req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(`{"email":"a@b.co"}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			h.Submit(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.result.Response, decodeResponse(t, rec))
		})
	}
}

func TestContactSubmitRetryAfterHeader(t *testing.T) {
	res := intake.Result{
		Response:   intake.Response{Error: intake.CodeRateLimited},
		RetryAfter: 90 * time.Second,
	}
	h := NewContactHandler(&fakeSubmitter{result: res}, logging.Discard())
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
}

func TestContactSubmitThroughPipeline(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Policies{
		ratelimit.ContactFormBucket: {Limit: 1, Window: 15 * time.Minute},
	})
	defer limiter.Close()
	repo := leads.NewInMemoryRepository()
	p := intake.NewPipeline(intake.Deps{
		Gate:   ratelimit.NewGate(limiter, ratelimit.GateConfig{Logger: logging.Discard()}),
		Leads:  repo,
		Logger: logging.Discard(),
	})
	h := NewContactHandler(p, logging.Discard())

	post := func() *httptest.ResponseRecorder {
		form := url.Values{"firstName": {"Jane"}, "email": {"jane@example.com"}, "message": {"Need a site"}}
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "198.51.100.9:4000"
		rec := httptest.NewRecorder()
		h.Submit(rec, req)
		return rec
	}

	first := post()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, intake.MessageTestMode, decodeResponse(t, first).Message)

	second := post()
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, decodeResponse(t, second).Message, "minutes")
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	assert.Eventually(t, func() bool { return repo.Count() == 1 }, time.Second, 10*time.Millisecond)
}
