// Package ratelimit decides whether a caller may proceed under a named policy.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ContactFormBucket is the policy applied to contact form submissions.
const ContactFormBucket = "contact-form"

// ErrUnknownBucket is returned when a bucket has no configured policy.
var ErrUnknownBucket = errors.New("ratelimit: unknown bucket")

// Decision is the answer for one check.
type Decision struct {
	Limited    bool
	RetryAfter time.Duration
}

// Limiter checks an identifier against the policy of a bucket.
type Limiter interface {
	CheckLimit(ctx context.Context, identifier, bucket string) (Decision, error)
}

// Policy allows Limit hits per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

func (p Policy) validate() error {
	if p.Limit <= 0 || p.Window <= 0 {
		return fmt.Errorf("ratelimit: invalid policy %d per %s", p.Limit, p.Window)
	}
	return nil
}

// Policies maps bucket names to their policy.
type Policies map[string]Policy

func (p Policies) lookup(bucket string) (Policy, error) {
	policy, ok := p[bucket]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}
	if err := policy.validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// ContactIdentifier namespaces a client IP for the contact form bucket.
func ContactIdentifier(clientIP string) string {
	return ContactFormBucket + ":" + clientIP
}
