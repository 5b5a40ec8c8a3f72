package leads

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Accepted enum values for the optional select fields.
var (
	Services  = []string{"web-development", "mobile-app", "ai-automation", "ecommerce", "seo", "consulting", "other"}
	Budgets   = []string{"low", "medium", "high", "enterprise"}
	Timelines = []string{"urgent", "soon", "flexible", "exploring"}
)

// submissionForm mirrors Submission with validation rules. Field order is the
// order issues are reported in.
type submissionForm struct {
	FirstName string `form:"firstName" validate:"required,max=100"`
	LastName  string `form:"lastName" validate:"omitempty,max=100"`
	Email     string `form:"email" validate:"required,max=254,email"`
	Phone     string `form:"phone" validate:"omitempty,max=40,phone"`
	Company   string `form:"company" validate:"omitempty,max=200"`
	Service   string `form:"service" validate:"omitempty,oneof=web-development mobile-app ai-automation ecommerce seo consulting other"`
	Budget    string `form:"budget" validate:"omitempty,oneof=low medium high enterprise"`
	Timeline  string `form:"timeline" validate:"omitempty,oneof=urgent soon flexible exploring"`
	Message   string `form:"message" validate:"required,max=5000"`
}

var phonePattern = regexp.MustCompile(`^[0-9+\-(). ]{7,40}$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			return f.Tag.Get("form")
		})
		_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return phonePattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Issue is one failed rule, phrased for the person filling in the form.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rule a submission broke.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Message())
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Message returns the first human readable issue.
func (e *ValidationError) Message() string {
	if e == nil || len(e.Issues) == 0 {
		return "Please check the form and try again."
	}
	return e.Issues[0].Message
}

// ParseSubmission validates raw form values into a Submission.
func ParseSubmission(values map[string]string) (Submission, error) {
	form := submissionForm{
		FirstName: clean(values["firstName"]),
		LastName:  clean(values["lastName"]),
		Email:     strings.ToLower(clean(values["email"])),
		Phone:     clean(values["phone"]),
		Company:   clean(values["company"]),
		Service:   strings.ToLower(clean(values["service"])),
		Budget:    strings.ToLower(clean(values["budget"])),
		Timeline:  strings.ToLower(clean(values["timeline"])),
		Message:   strings.TrimSpace(values["message"]),
	}

	if err := formValidator().Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Submission{}, fmt.Errorf("leads: validate submission: %w", err)
		}
		issues := make([]Issue, 0, len(verrs))
		for _, fe := range verrs {
			issues = append(issues, Issue{Field: fe.Field(), Message: issueMessage(fe)})
		}
		return Submission{}, &ValidationError{Issues: issues}
	}

	return Submission(form), nil
}

// FromURLValues flattens a parsed form post, keeping the first value per key.
func FromURLValues(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for key, vals := range v {
		if len(vals) > 0 {
			out[key] = vals[0]
		}
	}
	return out
}

func issueMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		switch field {
		case "firstName":
			return "Please enter your first name"
		case "email":
			return "Please enter your email address"
		case "message":
			return "Please enter a message"
		}
		return "This field is required"
	case "email":
		return "Please enter a valid email address"
	case "phone":
		return "Please enter a valid phone number"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", humanField(field), fe.Param())
	case "oneof":
		return fmt.Sprintf("Please choose a valid %s option", humanField(field))
	}
	return fmt.Sprintf("%s is invalid", humanField(field))
}

func humanField(field string) string {
	switch field {
	case "firstName":
		return "First name"
	case "lastName":
		return "Last name"
	case "email":
		return "Email"
	case "phone":
		return "Phone"
	case "company":
		return "Company"
	case "service":
		return "service"
	case "budget":
		return "budget"
	case "timeline":
		return "timeline"
	case "message":
		return "Message"
	}
	return field
}

// clean trims and collapses internal runs of whitespace in single line fields.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
