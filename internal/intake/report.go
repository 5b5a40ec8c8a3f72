package intake

import (
	"fmt"
	"math"
	"time"
)

const (
	MessageSuccess     = "Thank you for reaching out! We'll be in touch within 24 hours."
	MessageTestMode    = "Thank you for reaching out! (Test mode: email delivery is not configured.)"
	MessageSendFailed  = "Failed to send message. Please try again."
	MessageUnexpected  = "An unexpected error occurred. Please try again later."
	messageRateLimited = "Too many submissions. Please try again in %s."
)

// Verdict is everything the reporter needs to pick a response.
type Verdict struct {
	Stage             Stage
	RetryAfter        time.Duration
	ValidationMessage string
	EmailConfigured   bool
	AdminEmailSent    bool
}

// Report collapses a verdict into the caller facing response. Only the admin
// email can fail a request that reached the fanout.
func Report(v Verdict) Response {
	switch v.Stage {
	case StageRateLimited:
		return Response{Success: false, Message: fmt.Sprintf(messageRateLimited, retryPhrase(v.RetryAfter)), Error: CodeRateLimited}
	case StageInvalid:
		msg := v.ValidationMessage
		if msg == "" {
			msg = "Please check the form and try again."
		}
		return Response{Success: false, Message: msg, Error: CodeValidationFailed}
	case StageReported:
		if !v.EmailConfigured {
			return Response{Success: true, Message: MessageTestMode}
		}
		if !v.AdminEmailSent {
			return Response{Success: false, Message: MessageSendFailed, Error: CodeSendFailed}
		}
		return Response{Success: true, Message: MessageSuccess}
	default:
		return Response{Success: false, Message: MessageUnexpected, Error: CodeUnexpected}
	}
}

func retryPhrase(d time.Duration) string {
	if d <= 0 {
		return "a few minutes"
	}
	minutes := int(math.Ceil(d.Minutes()))
	if minutes <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
