package leads

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validValues() map[string]string {
	return map[string]string{
		"firstName": "Jane",
		"lastName":  "Doe",
		"email":     "jane@example.com",
		"message":   "Need a site",
		"budget":    "high",
		"timeline":  "urgent",
	}
}

func TestParseSubmission_Valid(t *testing.T) {
	values := validValues()
	values["firstName"] = "  Jane  "
	values["email"] = "Jane@Example.com "
	values["company"] = "Acme   Corp"
	values["service"] = "Web-Development"
	values["phone"] = "+1 (555) 010-2030"

	sub, err := ParseSubmission(values)
	require.NoError(t, err)
	assert.Equal(t, "Jane", sub.FirstName)
	assert.Equal(t, "jane@example.com", sub.Email)
	assert.Equal(t, "Acme Corp", sub.Company)
	assert.Equal(t, "web-development", sub.Service)
	assert.Equal(t, "high", sub.Budget)
	assert.Equal(t, "urgent", sub.Timeline)
	assert.Equal(t, "Jane Doe", sub.FullName())
}

func TestParseSubmission_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		field   string
		message string
	}{
		{"missing email", func(v map[string]string) { delete(v, "email") }, "email", "Please enter your email address"},
		{"malformed email", func(v map[string]string) { v["email"] = "not-an-email" }, "email", "Please enter a valid email address"},
		{"blank message", func(v map[string]string) { v["message"] = "   " }, "message", "Please enter a message"},
		{"missing first name", func(v map[string]string) { v["firstName"] = "" }, "firstName", "Please enter your first name"},
		{"unknown budget", func(v map[string]string) { v["budget"] = "infinite" }, "budget", "Please choose a valid budget option"},
		{"unknown timeline", func(v map[string]string) { v["timeline"] = "yesterday" }, "timeline", "Please choose a valid timeline option"},
		{"unknown service", func(v map[string]string) { v["service"] = "plumbing" }, "service", "Please choose a valid service option"},
		{"bad phone", func(v map[string]string) { v["phone"] = "call me maybe" }, "phone", "Please enter a valid phone number"},
		{"long message", func(v map[string]string) { v["message"] = strings.Repeat("a", 5001) }, "message", "Message must be at most 5000 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := validValues()
			tt.mutate(values)

			_, err := ParseSubmission(values)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Issues[0].Field)
			assert.Equal(t, tt.message, verr.Message())
			assert.NotContains(t, verr.Message(), "submissionForm")
		})
	}
}

func TestParseSubmission_FirstIssueInFieldOrder(t *testing.T) {
	_, err := ParseSubmission(map[string]string{"email": "bad"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Issues, 3)
	assert.Equal(t, "firstName", verr.Issues[0].Field)
	assert.Equal(t, "email", verr.Issues[1].Field)
	assert.Equal(t, "message", verr.Issues[2].Field)
}

func TestParseSubmission_AcceptsEveryEnumValue(t *testing.T) {
	for _, svc := range Services {
		values := validValues()
		values["service"] = svc
		_, err := ParseSubmission(values)
		assert.NoError(t, err, svc)
	}
	for _, b := range Budgets {
		values := validValues()
		values["budget"] = b
		_, err := ParseSubmission(values)
		assert.NoError(t, err, b)
	}
	for _, tl := range Timelines {
		values := validValues()
		values["timeline"] = tl
		_, err := ParseSubmission(values)
		assert.NoError(t, err, tl)
	}
}

func TestFromURLValues(t *testing.T) {
	v := url.Values{}
	v.Add("email", "a@example.com")
	v.Add("email", "b@example.com")
	v["empty"] = nil
	out := FromURLValues(v)
	assert.Equal(t, "a@example.com", out["email"])
	_, ok := out["empty"]
	assert.False(t, ok)
}

func TestValidationErrorNilSafeMessage(t *testing.T) {
	var verr *ValidationError
	assert.Equal(t, "Please check the form and try again.", verr.Message())
}
