package leads

import "errors"

var (
	// ErrValidation wraps every submission validation failure.
	ErrValidation = errors.New("leads: validation failed")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")
)
